package decision

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/openrights/registry/internal/directory"
	"github.com/openrights/registry/internal/identity"
	"github.com/openrights/registry/internal/ledger"
	"github.com/openrights/registry/internal/rights"
)

// Reason codes for decisions not produced by the rights rule table.
const (
	ReasonUnauthenticated = "UNAUTHENTICATED_REQUESTER"
	ReasonUnknownIdentity = "UNKNOWN_IDENTITY"
	ReasonPermitted       = "LOOKUP_PERMITTED"
)

// Decision is the outcome of one lookup. Record carries the permitted rights
// view and is set only on ALLOW.
type Decision struct {
	Outcome    string
	ReasonCode string
	Record     *identity.Record
}

// Blocked reports whether the lookup was denied.
func (d Decision) Blocked() bool {
	return d.Outcome == ledger.OutcomeBlock
}

type Engine struct {
	directory  *directory.Service
	identities *identity.Service
	ledger     *ledger.Ledger
	logger     *zap.Logger
}

func NewEngine(dir *directory.Service, ids *identity.Service, led *ledger.Ledger, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{directory: dir, identities: ids, ledger: led, logger: logger}
}

// Decide evaluates one lookup and records it. Every path that yields a
// Decision appends exactly one ledger entry first; if the append fails the
// caller gets the error and no outcome. Unrelated decisions run fully in
// parallel and meet only at the ledger append.
//
// The caller must treat every blocked outcome identically toward the
// requester: the reason code is for the ledger, never the response.
func (e *Engine) Decide(ctx context.Context, credential, token, rawIntent string) (Decision, error) {
	intent, err := rights.ParseIntent(rawIntent)
	if err != nil {
		// a malformed request, not a decision; nothing to audit
		return Decision{}, err
	}

	requesterID, err := e.directory.Authenticate(credential)
	if err != nil {
		if errors.Is(err, directory.ErrUnauthorized) {
			return e.record(ctx, "", token, intent, Decision{
				Outcome:    ledger.OutcomeBlock,
				ReasonCode: ReasonUnauthenticated,
			})
		}
		return Decision{}, err
	}

	rec, err := e.identities.Get(token)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return e.record(ctx, requesterID, token, intent, Decision{
				Outcome:    ledger.OutcomeBlock,
				ReasonCode: ReasonUnknownIdentity,
			})
		}
		return Decision{}, err
	}

	if rule, blocked := rights.FirstBlock(rec.Rights, intent); blocked {
		return e.record(ctx, requesterID, token, intent, Decision{
			Outcome:    ledger.OutcomeBlock,
			ReasonCode: rule.ReasonCode,
		})
	}

	return e.record(ctx, requesterID, token, intent, Decision{
		Outcome:    ledger.OutcomeAllow,
		ReasonCode: ReasonPermitted,
		Record:     &rec,
	})
}

// record appends the audit entry and only then releases the decision:
// audit-before-respond.
func (e *Engine) record(ctx context.Context, requesterID, token string, intent rights.Intent, d Decision) (Decision, error) {
	event, err := e.ledger.Append(ctx, ledger.Draft{
		RequesterID: requesterID,
		Token:       token,
		Intent:      string(intent),
		Outcome:     d.Outcome,
		ReasonCode:  d.ReasonCode,
	})
	if err != nil {
		e.logger.Error("audit append failed, decision withheld",
			zap.String("reason_code", d.ReasonCode),
			zap.Error(err))
		return Decision{}, fmt.Errorf("decision not recorded: %w", err)
	}

	e.logger.Debug("decision recorded",
		zap.Int64("sequence", event.Sequence),
		zap.String("outcome", d.Outcome),
		zap.String("reason_code", d.ReasonCode),
		zap.String("intent", string(intent)))
	return d, nil
}
