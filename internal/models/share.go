package models

import "time"

// Action is a consumption kind a share grant can admit.
type Action string

const (
	ActionView     Action = "view"
	ActionDownload Action = "download"
)

// Status is the derived lifecycle state of a share grant.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// ShareGrant is a password-protected share link over one environment's
// variable set. Counters and IsActive are mutated only by the store's
// Consume operation and by explicit revocation; grants are never deleted,
// revocation is a soft state.
type ShareGrant struct {
	ID             string     `json:"id"`
	EnvironmentID  string     `json:"environment_id"`
	Token          string     `json:"token"`
	PasswordHash   string     `json:"-"`
	ExpiresAt      *time.Time `json:"expires_at"`
	MaxViews       int        `json:"max_views"`     // 0 means unlimited
	MaxDownloads   int        `json:"max_downloads"` // 0 means unlimited
	ViewCount      int        `json:"view_count"`
	DownloadCount  int        `json:"download_count"`
	OneTime        bool       `json:"one_time"`
	WhitelistedIPs []string   `json:"whitelisted_ips,omitempty"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Expired reports whether the grant's time bound has passed. Grants without
// an ExpiresAt never expire.
func (g *ShareGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && g.ExpiresAt.Before(now)
}

// Status derives the lifecycle state. Revocation wins over expiry; an
// expired grant keeps IsActive == true until explicitly revoked but is
// never reported active.
func (g *ShareGrant) Status(now time.Time) Status {
	switch {
	case !g.IsActive:
		return StatusRevoked
	case g.Expired(now):
		return StatusExpired
	default:
		return StatusActive
	}
}

// QuotaLeft reports whether the grant still has budget for the action.
func (g *ShareGrant) QuotaLeft(action Action) bool {
	if action == ActionDownload {
		return g.MaxDownloads == 0 || g.DownloadCount < g.MaxDownloads
	}
	return g.MaxViews == 0 || g.ViewCount < g.MaxViews
}

// Clone returns a deep copy so store callers cannot mutate shared state.
func (g *ShareGrant) Clone() *ShareGrant {
	out := *g
	if g.ExpiresAt != nil {
		t := *g.ExpiresAt
		out.ExpiresAt = &t
	}
	if g.WhitelistedIPs != nil {
		out.WhitelistedIPs = append([]string(nil), g.WhitelistedIPs...)
	}
	return &out
}

// EnvVariable is a single key/value entry of a shared environment. Value is
// always plaintext at this layer; at-rest encryption of secret values is the
// environment store's concern.
type EnvVariable struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	IsSecret bool   `json:"is_secret"`
}
