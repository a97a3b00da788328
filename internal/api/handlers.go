package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openrights/registry/internal/directory"
	"github.com/openrights/registry/internal/identity"
	"github.com/openrights/registry/internal/ledger"
	"github.com/openrights/registry/internal/rights"
)

const apiVersion = "1.0.0"

// blockedDetail is the single body every blocked lookup receives. A caller
// must not be able to tell an unknown token from a protected one, nor a
// credential failure from either.
const blockedDetail = "lookup blocked by privacy rights registry"

type Handler struct {
	Service *Service
	Logger  *zap.Logger
}

func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Service: svc, Logger: logger}
}

// NewRouter mounts every endpoint on a fresh mux.
func NewRouter(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/register", h.RegisterIdentity)
	mux.HandleFunc("/v1/rights/", h.UpdateRights)
	mux.HandleFunc("/v1/company/register", h.RegisterCompany)
	mux.HandleFunc("/v1/company/", h.Company)
	mux.HandleFunc("/v1/registry/", h.Lookup)
	mux.HandleFunc("/v1/transparency/global", h.Transparency)
	mux.HandleFunc("/v1/health", h.Health)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

type identityView struct {
	Token   string          `json:"token"`
	Rights  map[string]bool `json:"rights"`
	Version int64           `json:"version"`
}

func viewOf(rec identity.Record) identityView {
	return identityView{Token: rec.Token, Rights: rec.Rights.Flags(), Version: rec.Version}
}

type registerIdentityRequest struct {
	Rights map[string]bool `json:"rights"`
}

// RegisterIdentity handles POST /v1/register.
func (h *Handler) RegisterIdentity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req registerIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := h.Service.RegisterIdentity(req.Rights)
	if err != nil {
		if errors.Is(err, rights.ErrUnknownRight) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.internalError(w, "register identity", err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(rec))
}

// UpdateRights handles PUT /v1/rights/{token}.
func (h *Handler) UpdateRights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	token := strings.TrimPrefix(r.URL.Path, "/v1/rights/")
	if token == "" || strings.Contains(token, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	var req registerIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := h.Service.UpdateRights(token, req.Rights)
	if err != nil {
		switch {
		case errors.Is(err, rights.ErrUnknownRight):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, identity.ErrNotFound):
			writeError(w, http.StatusNotFound, "identity not found")
		default:
			h.internalError(w, "update rights", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, viewOf(rec))
}

type registerCompanyRequest struct {
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email"`
}

type registerCompanyResponse struct {
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	APIKey    string `json:"api_key"`
}

// RegisterCompany handles POST /v1/company/register.
func (h *Handler) RegisterCompany(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req registerCompanyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	grant, err := h.Service.RegisterRequester(req.Name, req.ContactEmail)
	if err != nil {
		h.internalError(w, "register company", err)
		return
	}
	writeJSON(w, http.StatusCreated, registerCompanyResponse{
		CompanyID: grant.RequesterID,
		Name:      grant.Name,
		APIKey:    grant.Credential,
	})
}

// Company handles POST /v1/company/{id}/revoke and
// POST /v1/company/{id}/rotate.
func (h *Handler) Company(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/company/")
	id, action, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch action {
	case "revoke":
		if err := h.Service.RevokeRequester(id); err != nil {
			if errors.Is(err, directory.ErrNotFound) {
				writeError(w, http.StatusNotFound, "company not found")
				return
			}
			h.internalError(w, "revoke company", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"company_id": id, "status": "revoked"})
	case "rotate":
		credential, err := h.Service.RotateCredential(id)
		if err != nil {
			switch {
			case errors.Is(err, directory.ErrNotFound):
				writeError(w, http.StatusNotFound, "company not found")
			case errors.Is(err, directory.ErrUnauthorized):
				writeError(w, http.StatusConflict, "company is revoked")
			default:
				h.internalError(w, "rotate credential", err)
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"company_id": id, "api_key": credential})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// Lookup handles GET /v1/registry/{token}?intent=. Every blocked outcome,
// whatever its ledgered reason, produces the same 403 body.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	token := strings.TrimPrefix(r.URL.Path, "/v1/registry/")
	if token == "" || strings.Contains(token, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	credential := bearerToken(r)

	dec, err := h.Service.DecideLookup(r.Context(), credential, token, r.URL.Query().Get("intent"))
	if err != nil {
		switch {
		case errors.Is(err, rights.ErrUnknownIntent):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrWriteFailed):
			writeError(w, http.StatusServiceUnavailable, "registry unavailable")
		default:
			h.internalError(w, "lookup", err)
		}
		return
	}
	if dec.Blocked() {
		writeError(w, http.StatusForbidden, blockedDetail)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*dec.Record))
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimPrefix(auth, prefix)
}

// Transparency handles GET /v1/transparency/global.
func (h *Handler) Transparency(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap, err := h.Service.TransparencySnapshot()
	if err != nil {
		h.internalError(w, "transparency snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Health handles GET /v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   apiVersion,
	})
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.Logger.Error(op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
