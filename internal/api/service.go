package api

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/openrights/registry/internal/decision"
	"github.com/openrights/registry/internal/directory"
	"github.com/openrights/registry/internal/identity"
	"github.com/openrights/registry/internal/ledger"
	"github.com/openrights/registry/internal/rights"
	"github.com/openrights/registry/internal/store"
	"github.com/openrights/registry/internal/transparency"
)

// Service is the core registry facade. Every operation returns a typed
// result or a typed failure and is independent of any wire format.
type Service struct {
	Identities *identity.Service
	Directory  *directory.Service
	Engine     *decision.Engine
	Ledger     *ledger.Ledger
	Aggregator *transparency.Aggregator

	logger *zap.Logger
}

type NewServiceInput struct {
	Store          store.Store
	FingerprintKey []byte
	AppendTimeout  time.Duration
	Logger         *zap.Logger
}

func NewService(in NewServiceInput) (*Service, error) {
	logger := in.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fp, err := ledger.NewFingerprinter(in.FingerprintKey)
	if err != nil {
		return nil, err
	}
	led, err := ledger.New(in.Store, fp, in.AppendTimeout)
	if err != nil {
		return nil, err
	}

	ids := identity.NewService(in.Store, nil)
	dir := directory.NewService(in.Store, nil)
	agg := transparency.NewAggregator(in.Store)
	if err := agg.CatchUp(led); err != nil {
		return nil, err
	}

	return &Service{
		Identities: ids,
		Directory:  dir,
		Engine:     decision.NewEngine(dir, ids, led, logger),
		Ledger:     led,
		Aggregator: agg,
		logger:     logger,
	}, nil
}

// StartFollower runs the transparency follower until ctx is cancelled.
func (s *Service) StartFollower(ctx context.Context, poll time.Duration) {
	follower := transparency.NewFollower(s.Aggregator, s.Ledger, s.Ledger.Subscribe(), poll, s.logger)
	go follower.Run(ctx)
}

// RegisterIdentity mints a token and stores its initial rights.
func (s *Service) RegisterIdentity(flags map[string]bool) (identity.Record, error) {
	set, err := rights.ParseSet(flags)
	if err != nil {
		return identity.Record{}, err
	}
	return s.Identities.Register(set)
}

// UpdateRights replaces the rights for token, bumping its version.
func (s *Service) UpdateRights(token string, flags map[string]bool) (identity.Record, error) {
	set, err := rights.ParseSet(flags)
	if err != nil {
		return identity.Record{}, err
	}
	return s.Identities.UpdateRights(token, set)
}

// RequesterGrant is the one-time response to requester registration; the
// credential is never recoverable afterwards.
type RequesterGrant struct {
	RequesterID string
	Name        string
	Credential  string
}

func (s *Service) RegisterRequester(name, contact string) (RequesterGrant, error) {
	requesterID, credential, err := s.Directory.Register(name, contact)
	if err != nil {
		return RequesterGrant{}, err
	}
	return RequesterGrant{RequesterID: requesterID, Name: name, Credential: credential}, nil
}

func (s *Service) RevokeRequester(requesterID string) error {
	return s.Directory.Revoke(requesterID)
}

func (s *Service) RotateCredential(requesterID string) (string, error) {
	return s.Directory.Rotate(requesterID)
}

func (s *Service) DecideLookup(ctx context.Context, credential, token, intent string) (decision.Decision, error) {
	return s.Engine.Decide(ctx, credential, token, intent)
}

func (s *Service) TransparencySnapshot() (transparency.Snapshot, error) {
	return s.Aggregator.Snapshot()
}

// VerifyLedger walks the audit chain; used by operator tooling.
func (s *Service) VerifyLedger() (int64, error) {
	return s.Ledger.Verify()
}
