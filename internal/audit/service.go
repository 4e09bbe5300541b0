package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to app users.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var (
	ErrInvalidEvent      = errors.New("audit: invalid event")
	ErrRepoNotConfigured = errors.New("audit: repository not configured")
)

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return ErrRepoNotConfigured
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.IPAddress == "" {
		e.IPAddress = ClientIPFromContext(ctx)
	}
	return s.repo.Append(ctx, e)
}

// LogAdminAction records an admin action on a user's wallet.
func (s *Service) LogAdminAction(ctx context.Context, actorUserID, actorRole, targetUserID, message, metadata string) error {
	if actorUserID == "" || targetUserID == "" {
		return ErrInvalidEvent
	}
	return s.Append(ctx, Event{
		Type:        EventTypeAdminAction,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		UserID:      targetUserID,
		Message:     message,
		Metadata:    metadata,
	})
}

// LogShareAnomaly records a call transaction whose receiver and admin shares
// add up to more than the billed coins. The transaction is still processed.
func (s *Service) LogShareAnomaly(ctx context.Context, transactionID, callID, payerUserID, metadata string) error {
	if transactionID == "" {
		return ErrInvalidEvent
	}
	return s.Append(ctx, Event{
		Type:          EventTypeShareAnomaly,
		UserID:        payerUserID,
		TransactionID: transactionID,
		CallID:        callID,
		Message:       "shares exceed billed coins",
		Metadata:      metadata,
	})
}
