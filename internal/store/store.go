package store

import (
	"context"
	"errors"
	"time"

	"env.share/internal/models"
)

var (
	ErrNotFound       = errors.New("share grant not found")
	ErrRevoked        = errors.New("share grant is revoked")
	ErrExpired        = errors.New("share grant has expired")
	ErrExhausted      = errors.New("share grant quota exhausted")
	ErrDuplicateToken = errors.New("share token already in use")
)

// Store is the durable record of share grants. Grants are never physically
// deleted; revocation flips IsActive and preserves the audit history.
type Store interface {
	// Save persists a new grant. A token collision fails with
	// ErrDuplicateToken so callers can regenerate.
	Save(ctx context.Context, grant *models.ShareGrant) error

	GetByID(ctx context.Context, id string) (*models.ShareGrant, error)
	GetByToken(ctx context.Context, token string) (*models.ShareGrant, error)

	// ListByEnvironment returns the environment's grants, newest first.
	ListByEnvironment(ctx context.Context, environmentID string) ([]*models.ShareGrant, error)

	// Revoke sets IsActive to false. Revoking an already revoked grant is a
	// no-op success; the transition is irreversible.
	Revoke(ctx context.Context, id string) error

	// Consume is the single atomic conditional update admitting an access:
	// it re-checks activation, expiry and the action's quota against the
	// stored counters, increments the counter, and deactivates the grant
	// when a one-time grant is viewed, all as one transaction. Two
	// concurrent consumers can never both be admitted past the last unit of
	// quota. Returns the updated grant snapshot on admission.
	Consume(ctx context.Context, token string, action models.Action, now time.Time) (*models.ShareGrant, error)

	Close() error
}
