// Package audit records grant lifecycle and access events. Entries carry
// enough detail to reconstruct who did what to which grant, but never a
// full share token or any password material.
package audit

import "log"

type Entry struct {
	Action   string // create, revoke, view, download, denied
	Resource string
	ID       string
	Details  string
}

type Recorder struct {
	logger *log.Logger
}

func NewRecorder(logger *log.Logger) *Recorder {
	return &Recorder{logger: logger}
}

func (r *Recorder) Record(e Entry) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.Printf("audit action=%s resource=%s id=%s details=%q", e.Action, e.Resource, e.ID, e.Details)
}

// TokenHint returns a short loggable prefix of a share token. Tokens are
// capability-bearing, so only enough survives to correlate log lines.
func TokenHint(token string) string {
	const visible = 8
	if len(token) <= visible {
		return "..."
	}
	return token[:visible] + "..."
}
