package share

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"env.share/internal/audit"
	"env.share/internal/crypto"
	"env.share/internal/envstore"
	"env.share/internal/ipfilter"
	"env.share/internal/models"
	"env.share/internal/store"
)

// tokenAttempts bounds regeneration on the (practically impossible)
// collision of a fresh 256-bit token.
const tokenAttempts = 5

type Config struct {
	MinPasswordLength int
}

// Service is the grant lifecycle manager and access evaluator. All counter
// and activation mutations go through the store's Consume and Revoke;
// the service never writes grant state directly.
type Service struct {
	grants store.Store
	env    envstore.Source
	audit  *audit.Recorder
	cfg    Config
}

func NewService(grants store.Store, env envstore.Source, recorder *audit.Recorder, cfg Config) *Service {
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = 6
	}
	return &Service{
		grants: grants,
		env:    env,
		audit:  recorder,
		cfg:    cfg,
	}
}

type CreateInput struct {
	EnvironmentID  string
	Password       string
	ExpiresAt      *time.Time
	MaxViews       int // 0 means unlimited
	MaxDownloads   int // 0 means unlimited
	OneTime        bool
	WhitelistedIPs []string
}

// Create validates the input, generates a fresh token and stores a new
// active grant. The plaintext password is hashed immediately and never
// retained.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.ShareGrant, error) {
	if in.EnvironmentID == "" {
		return nil, validationf("environment id is required")
	}
	if len(in.Password) < s.cfg.MinPasswordLength {
		return nil, validationf("password must be at least %d characters", s.cfg.MinPasswordLength)
	}
	if in.MaxViews < 0 {
		return nil, validationf("max_views must not be negative")
	}
	if in.MaxDownloads < 0 {
		return nil, validationf("max_downloads must not be negative")
	}

	var allowlist []string
	for _, entry := range in.WhitelistedIPs {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !ipfilter.ValidIPv4(entry) {
			return nil, validationf("invalid IPv4 address: %s", entry)
		}
		allowlist = append(allowlist, entry)
	}

	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	grant := &models.ShareGrant{
		ID:             uuid.NewString(),
		EnvironmentID:  in.EnvironmentID,
		PasswordHash:   hash,
		ExpiresAt:      in.ExpiresAt,
		MaxViews:       in.MaxViews,
		MaxDownloads:   in.MaxDownloads,
		OneTime:        in.OneTime,
		WhitelistedIPs: allowlist,
		IsActive:       true,
		CreatedAt:      time.Now(),
	}

	for i := 0; i < tokenAttempts; i++ {
		grant.Token = crypto.GenerateToken()
		err = s.grants.Save(ctx, grant)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrDuplicateToken) {
			return nil, fmt.Errorf("saving share grant: %w", err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("saving share grant: %w", err)
	}

	s.audit.Record(audit.Entry{
		Action:   "create",
		Resource: "share_grant",
		ID:       grant.ID,
		Details:  fmt.Sprintf("created share link for environment %s", grant.EnvironmentID),
	})
	return grant, nil
}

// Revoke deactivates the grant. Idempotent and irreversible.
func (s *Service) Revoke(ctx context.Context, grantID string) error {
	if err := s.grants.Revoke(ctx, grantID); err != nil {
		return err
	}
	s.audit.Record(audit.Entry{
		Action:   "revoke",
		Resource: "share_grant",
		ID:       grantID,
		Details:  "revoked share link",
	})
	return nil
}

// List returns an environment's grants for owner display, newest first.
func (s *Service) List(ctx context.Context, environmentID string) ([]*models.ShareGrant, error) {
	return s.grants.ListByEnvironment(ctx, environmentID)
}

// Status derives the current lifecycle state of the grant behind token.
func (s *Service) Status(ctx context.Context, token string) (models.Status, error) {
	grant, err := s.grants.GetByToken(ctx, token)
	if err != nil {
		return "", err
	}
	return grant.Status(time.Now()), nil
}

type AccessResult struct {
	Grant     *models.ShareGrant
	Variables []models.EnvVariable
}

// Access decides one view or download attempt. Evaluation order: lookup,
// revocation, expiry, source address, password, then the atomic quota
// consume in the store. Only after admission is the variable set read.
func (s *Service) Access(ctx context.Context, token, password, sourceIP string, action models.Action) (*AccessResult, error) {
	grant, err := s.grants.GetByToken(ctx, token)
	if err != nil {
		s.deny(token, action, sourceIP, err)
		return nil, err
	}

	now := time.Now()
	switch grant.Status(now) {
	case models.StatusRevoked:
		s.deny(token, action, sourceIP, store.ErrRevoked)
		return nil, store.ErrRevoked
	case models.StatusExpired:
		s.deny(token, action, sourceIP, store.ErrExpired)
		return nil, store.ErrExpired
	}

	if !ipfilter.Permitted(sourceIP, grant.WhitelistedIPs) {
		s.deny(token, action, sourceIP, ErrForbidden)
		return nil, ErrForbidden
	}

	if !crypto.VerifyPassword(grant.PasswordHash, password) {
		s.deny(token, action, sourceIP, ErrUnauthorized)
		return nil, ErrUnauthorized
	}

	// Revocation or exhaustion racing with this attempt is re-checked here;
	// Consume is the single writer of counters and one-time deactivation.
	updated, err := s.grants.Consume(ctx, token, action, now)
	if err != nil {
		s.deny(token, action, sourceIP, err)
		return nil, err
	}

	variables, err := s.env.Variables(ctx, updated.EnvironmentID)
	if err != nil {
		return nil, fmt.Errorf("loading shared variables: %w", err)
	}

	s.audit.Record(audit.Entry{
		Action:   string(action),
		Resource: "share_grant",
		ID:       updated.ID,
		Details:  fmt.Sprintf("environment %s accessed via token %s from %s", updated.EnvironmentID, audit.TokenHint(token), sourceIP),
	})
	return &AccessResult{Grant: updated, Variables: variables}, nil
}

func (s *Service) deny(token string, action models.Action, sourceIP string, reason error) {
	s.audit.Record(audit.Entry{
		Action:   "denied",
		Resource: "share_grant",
		ID:       audit.TokenHint(token),
		Details:  fmt.Sprintf("%s attempt from %s: %v", action, sourceIP, reason),
	})
}

// RenderEnvFile serializes a variable set as an environment file, one
// KEY=VALUE line per variable in canonical order, newline-terminated.
func RenderEnvFile(variables []models.EnvVariable) string {
	var b strings.Builder
	for _, v := range variables {
		b.WriteString(v.Key)
		b.WriteByte('=')
		b.WriteString(v.Value)
		b.WriteByte('\n')
	}
	return b.String()
}
