package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"env.share/config"
	"env.share/internal/envstore"
	"env.share/internal/mask"
	"env.share/internal/models"
	"env.share/internal/share"
	"env.share/internal/store"
)

// genericDenial is the single holder-facing message for every access-time
// failure that could act as a password or allowlist oracle.
const genericDenial = "share link is invalid or access is denied"

type Handler struct {
	shares *share.Service
	env    envstore.Store
	config *config.Config
}

func NewHandler(shares *share.Service, env envstore.Store, cfg *config.Config) *Handler {
	return &Handler{
		shares: shares,
		env:    env,
		config: cfg,
	}
}

type CreateShareRequest struct {
	Password  string     `json:"password"`
	ExpiresAt *time.Time `json:"expires_at"`
	// Omitted quotas take the configured defaults; an explicit 0 means
	// unlimited.
	MaxViews       *int     `json:"max_views"`
	MaxDownloads   *int     `json:"max_downloads"`
	OneTime        bool     `json:"one_time"`
	WhitelistedIPs []string `json:"whitelisted_ips"`
}

type CreateShareResponse struct {
	ShareURL       string     `json:"share_url"`
	ExpiresAt      *time.Time `json:"expires_at"`
	MaxViews       int        `json:"max_views"`
	MaxDownloads   int        `json:"max_downloads"`
	OneTime        bool       `json:"one_time"`
	WhitelistedIPs []string   `json:"whitelisted_ips"`
}

type AccessRequest struct {
	Password string `json:"password"`
}

type ViewResponse struct {
	EnvironmentID string               `json:"environment_id"`
	Variables     []models.EnvVariable `json:"variables"`
}

type StatusResponse struct {
	Exists  bool `json:"exists"`
	Expired bool `json:"expired"`
}

type VariableRequest struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	IsSecret bool   `json:"is_secret"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateShare(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")

	var req CreateShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	maxViews := h.config.Shares.DefaultMaxViews
	if req.MaxViews != nil {
		maxViews = *req.MaxViews
	}
	maxDownloads := h.config.Shares.DefaultMaxDownloads
	if req.MaxDownloads != nil {
		maxDownloads = *req.MaxDownloads
	}

	grant, err := h.shares.Create(r.Context(), share.CreateInput{
		EnvironmentID:  environmentID,
		Password:       req.Password,
		ExpiresAt:      req.ExpiresAt,
		MaxViews:       maxViews,
		MaxDownloads:   maxDownloads,
		OneTime:        req.OneTime,
		WhitelistedIPs: req.WhitelistedIPs,
	})
	if err != nil {
		var verr *share.ValidationError
		if errors.As(err, &verr) {
			h.error(w, http.StatusBadRequest, verr.Msg)
			return
		}
		h.error(w, http.StatusInternalServerError, "failed to create share link")
		return
	}

	h.json(w, http.StatusCreated, CreateShareResponse{
		ShareURL:       h.config.Server.BaseURL + "/share/" + grant.Token,
		ExpiresAt:      grant.ExpiresAt,
		MaxViews:       grant.MaxViews,
		MaxDownloads:   grant.MaxDownloads,
		OneTime:        grant.OneTime,
		WhitelistedIPs: grant.WhitelistedIPs,
	})
}

func (h *Handler) ListShares(w http.ResponseWriter, r *http.Request) {
	grants, err := h.shares.List(r.Context(), chi.URLParam(r, "environmentID"))
	if err != nil {
		h.error(w, http.StatusInternalServerError, "failed to list share links")
		return
	}
	if grants == nil {
		grants = []*models.ShareGrant{}
	}
	h.json(w, http.StatusOK, grants)
}

func (h *Handler) RevokeShare(w http.ResponseWriter, r *http.Request) {
	err := h.shares.Revoke(r.Context(), chi.URLParam(r, "shareID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.error(w, http.StatusNotFound, "share link not found")
			return
		}
		h.error(w, http.StatusInternalServerError, "failed to revoke share link")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ViewShare(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req AccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.shares.Access(r.Context(), token, req.Password, clientIP(r), models.ActionView)
	if err != nil {
		h.handleAccessError(w, err)
		return
	}

	variables := result.Variables
	if variables == nil {
		variables = []models.EnvVariable{}
	}
	h.json(w, http.StatusOK, ViewResponse{
		EnvironmentID: result.Grant.EnvironmentID,
		Variables:     variables,
	})
}

func (h *Handler) DownloadShare(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req AccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.shares.Access(r.Context(), token, req.Password, clientIP(r), models.ActionDownload)
	if err != nil {
		h.handleAccessError(w, err)
		return
	}

	filename := fmt.Sprintf("env_%s.env", result.Grant.EnvironmentID)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(share.RenderEnvFile(result.Variables)))
}

// ShareStatus is the holder-safe probe: it reveals expiry (harmless per the
// failure reporting policy) but reports revoked links as nonexistent.
func (h *Handler) ShareStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.shares.Status(r.Context(), chi.URLParam(r, "token"))
	if err != nil || status == models.StatusRevoked {
		h.json(w, http.StatusOK, StatusResponse{Exists: false})
		return
	}
	h.json(w, http.StatusOK, StatusResponse{
		Exists:  true,
		Expired: status == models.StatusExpired,
	})
}

func (h *Handler) ListVariables(w http.ResponseWriter, r *http.Request) {
	variables, err := h.env.Variables(r.Context(), chi.URLParam(r, "environmentID"))
	if err != nil {
		h.error(w, http.StatusInternalServerError, "failed to load variables")
		return
	}

	// Owner display masks secret values; reveal is a separate, explicit
	// request.
	if r.URL.Query().Get("reveal") != "true" {
		for i := range variables {
			if variables[i].IsSecret {
				variables[i].Value = mask.Mask(variables[i].Value)
			}
		}
	}
	if variables == nil {
		variables = []models.EnvVariable{}
	}
	h.json(w, http.StatusOK, variables)
}

func (h *Handler) PutVariable(w http.ResponseWriter, r *http.Request) {
	var req VariableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Key == "" || strings.ContainsAny(req.Key, "= \t\n") {
		h.error(w, http.StatusBadRequest, "variable key must be non-empty and contain no '=' or whitespace")
		return
	}

	err := h.env.Put(r.Context(), chi.URLParam(r, "environmentID"), models.EnvVariable{
		Key:      req.Key,
		Value:    req.Value,
		IsSecret: req.IsSecret,
	})
	if err != nil {
		h.error(w, http.StatusInternalServerError, "failed to save variable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteVariable(w http.ResponseWriter, r *http.Request) {
	err := h.env.Delete(r.Context(), chi.URLParam(r, "environmentID"), chi.URLParam(r, "key"))
	if err != nil {
		if errors.Is(err, envstore.ErrVariableNotFound) {
			h.error(w, http.StatusNotFound, "variable not found")
			return
		}
		h.error(w, http.StatusInternalServerError, "failed to delete variable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) json(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) error(w http.ResponseWriter, status int, message string) {
	h.json(w, status, ErrorResponse{Error: message})
}

// handleAccessError maps evaluator failures to holder-facing responses.
// Expired and exhausted are safe to reveal; everything else collapses into
// one undifferentiated denial so the endpoint is not a password or IP
// oracle. The audit trail keeps the precise reason.
func (h *Handler) handleAccessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrExpired):
		h.error(w, http.StatusGone, "share link has expired")
	case errors.Is(err, store.ErrExhausted):
		h.error(w, http.StatusGone, "share link has reached its access limit")
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrRevoked),
		errors.Is(err, share.ErrForbidden),
		errors.Is(err, share.ErrUnauthorized):
		h.error(w, http.StatusForbidden, genericDenial)
	default:
		h.error(w, http.StatusInternalServerError, "internal error")
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RealIP middleware leaves a bare address when it rewrites
		// RemoteAddr from forwarding headers.
		return r.RemoteAddr
	}
	return host
}
