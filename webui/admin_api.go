package webui

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"productstudio/db"
	"productstudio/ledger"
	"productstudio/logging"
	"productstudio/metrics"
)

// Interfaces consumed by AdminAPI.
type (
	// ProfileDirectory lists and removes profiles. *db.Repository implements it.
	ProfileDirectory interface {
		ListProfiles(ctx context.Context, limit, offset int) ([]db.Profile, error)
		GetProfile(ctx context.Context, id string) (db.Profile, error)
		DeleteProfile(ctx context.Context, id string) error
	}

	// AccountAdmin creates accounts and corrects balances. *ledger.Ledger
	// implements it.
	AccountAdmin interface {
		Provision(ctx context.Context, userID, email string) (db.Profile, bool, error)
		Adjust(ctx context.Context, userID string, delta int64, reason string) (int64, error)
	}

	// CatalogCleaner removes every asset a user uploaded.
	CatalogCleaner interface {
		Clear(ctx context.Context, ownerID string) (int64, error)
	}

	// GalleryCleaner removes every image generated for a user.
	GalleryCleaner interface {
		DeleteOwner(ctx context.Context, ownerID string) error
	}

	// MetricsReader exposes the in-memory generation statistics.
	// *metrics.Store implements it.
	MetricsReader interface {
		GetGenerationMetrics() metrics.GenerationMetrics
		GetRecentGenerations(limit int) []metrics.GenerationRecord
		GetSystemStatus() metrics.SystemStatus
	}

	// EventLog reads the persisted generation audit trail.
	// *db.Repository implements it.
	EventLog interface {
		QueryRecentGenerationEvents(ctx context.Context, ownerID string, limit int) ([]db.GenerationEvent, error)
		CountGenerationEvents(ctx context.Context) (int64, error)
	}

	// AdminGuard authenticates admin requests.
	AdminGuard interface {
		Middleware(next http.Handler) http.Handler
	}
)

// AdminAPIConfig wires AdminAPI to its collaborators.
type AdminAPIConfig struct {
	Profiles ProfileDirectory
	Accounts AccountAdmin
	Catalog  CatalogCleaner
	Gallery  GalleryCleaner
	Metrics  MetricsReader
	Events   EventLog
	Health   *HealthMonitor

	DefaultLimit int
	MaxLimit     int
	VersionInfo  VersionInfo
}

// VersionInfo contains version metadata for status responses.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
}

// AdminAPI serves the /admin/api endpoints.
type AdminAPI struct {
	config AdminAPIConfig
	logger *logging.Logger
}

// NewAdminAPI creates the handler set.
func NewAdminAPI(config AdminAPIConfig, logger *logging.Logger) *AdminAPI {
	if config.DefaultLimit < 1 {
		config.DefaultLimit = 50
	}
	if config.MaxLimit < config.DefaultLimit {
		config.MaxLimit = 500
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AdminAPI{config: config, logger: logger.Named("admin")}
}

// RegisterRoutes mounts the endpoints on mux behind guard.
func (api *AdminAPI) RegisterRoutes(mux *http.ServeMux, guard AdminGuard) {
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, guard.Middleware(fn))
	}

	handle("GET /admin/api/users", api.HandleListUsers)
	handle("POST /admin/api/users", api.HandleCreateUser)
	handle("POST /admin/api/users/{id}/tokens", api.HandleAdjustTokens)
	handle("DELETE /admin/api/users/{id}", api.HandleDeleteUser)
	handle("GET /admin/api/metrics", api.HandleMetrics)
	handle("GET /admin/api/generations", api.HandleGenerations)
}

// UserResponse is one profile as seen by an admin.
type UserResponse struct {
	ID           string    `json:"id"`
	Email        string    `json:"email,omitempty"`
	TokenBalance int64     `json:"token_balance"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func userResponse(p db.Profile) UserResponse {
	return UserResponse{
		ID:           p.ID,
		Email:        p.Email,
		TokenBalance: p.TokenBalance,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// UsersResponse represents the JSON response for GET /admin/api/users.
type UsersResponse struct {
	Users  []UserResponse `json:"users"`
	Count  int            `json:"count"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// HandleListUsers handles GET /admin/api/users.
// Query parameters:
// - limit: page size (default 50, max 500)
// - offset: rows to skip
func (api *AdminAPI) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, api.config.DefaultLimit, api.config.MaxLimit)
	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			offset = parsed
		}
	}

	profiles, err := api.config.Profiles.ListProfiles(r.Context(), limit, offset)
	if err != nil {
		api.internalError(w, "failed to list profiles", err)
		return
	}

	users := make([]UserResponse, 0, len(profiles))
	for _, p := range profiles {
		users = append(users, userResponse(p))
	}
	writeJSON(w, http.StatusOK, UsersResponse{Users: users, Count: len(users), Limit: limit, Offset: offset})
}

// CreateUserRequest is the body of POST /admin/api/users.
type CreateUserRequest struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// HandleCreateUser handles POST /admin/api/users. The profile starts with
// the default token balance.
func (api *AdminAPI) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id is required")
		return
	}

	profile, created, err := api.config.Accounts.Provision(r.Context(), req.ID, strings.TrimSpace(req.Email))
	if err != nil {
		api.internalError(w, "failed to create profile", err)
		return
	}
	if !created {
		writeError(w, http.StatusConflict, "exists", "a profile with this id already exists")
		return
	}

	api.logger.Info("profile created by admin", logging.UserField(profile.ID))
	writeJSON(w, http.StatusCreated, userResponse(profile))
}

// AdjustTokensRequest is the body of POST /admin/api/users/{id}/tokens.
type AdjustTokensRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

// HandleAdjustTokens handles POST /admin/api/users/{id}/tokens. A negative
// delta larger than the balance is refused.
func (api *AdminAPI) HandleAdjustTokens(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	var req AdjustTokensRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.Delta == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "delta must not be zero")
		return
	}

	balance, err := api.config.Accounts.Adjust(r.Context(), userID, req.Delta, strings.TrimSpace(req.Reason))
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "not_found", "profile not found")
		return
	case errors.Is(err, ledger.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, "insufficient_balance", "the balance cannot go below zero")
		return
	default:
		api.internalError(w, "failed to adjust tokens", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":            userID,
		"token_balance": balance,
	})
}

// HandleDeleteUser handles DELETE /admin/api/users/{id}. Uploaded assets
// and generated images are removed before the profile row.
func (api *AdminAPI) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	ctx := r.Context()

	if _, err := api.config.Profiles.GetProfile(ctx, userID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		api.internalError(w, "failed to load profile", err)
		return
	}

	if _, err := api.config.Catalog.Clear(ctx, userID); err != nil {
		api.internalError(w, "failed to remove uploaded assets", err)
		return
	}
	if err := api.config.Gallery.DeleteOwner(ctx, userID); err != nil {
		api.internalError(w, "failed to remove generated images", err)
		return
	}
	if err := api.config.Profiles.DeleteProfile(ctx, userID); err != nil && !errors.Is(err, db.ErrNotFound) {
		api.internalError(w, "failed to delete profile", err)
		return
	}

	api.logger.Info("profile deleted by admin", logging.UserField(userID))
	w.WriteHeader(http.StatusNoContent)
}

// AdminMetricsResponse represents the JSON response for /admin/api/metrics.
type AdminMetricsResponse struct {
	Health       string                     `json:"health"`
	Version      string                     `json:"version"`
	BuildDate    string                     `json:"build_date,omitempty"`
	GitCommit    string                     `json:"git_commit,omitempty"`
	Uptime       string                     `json:"uptime"`
	UptimeSecs   float64                    `json:"uptime_secs"`
	InFlight     int64                      `json:"in_flight"`
	Generations  metrics.GenerationMetrics  `json:"generations"`
	Recent       []metrics.GenerationRecord `json:"recent"`
	Dependencies []DependencyStatus         `json:"dependencies,omitempty"`
}

// HandleMetrics handles GET /admin/api/metrics.
// Query parameters:
// - limit: number of recent generations to include (default 50)
func (api *AdminAPI) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, api.config.DefaultLimit, api.config.MaxLimit)
	status := api.config.Metrics.GetSystemStatus()

	resp := AdminMetricsResponse{
		Health:      status.Health,
		Version:     api.config.VersionInfo.Version,
		BuildDate:   api.config.VersionInfo.BuildDate,
		GitCommit:   api.config.VersionInfo.GitCommit,
		Uptime:      FormatDuration(status.Uptime),
		UptimeSecs:  status.Uptime.Seconds(),
		InFlight:    status.InFlight,
		Generations: api.config.Metrics.GetGenerationMetrics(),
		Recent:      api.config.Metrics.GetRecentGenerations(limit),
	}
	if resp.Recent == nil {
		resp.Recent = []metrics.GenerationRecord{}
	}
	if api.config.Health != nil {
		resp.Dependencies, _ = api.config.Health.Status()
	}

	writeJSON(w, http.StatusOK, resp)
}

// GenerationEventResponse is one audited batch or edit.
type GenerationEventResponse struct {
	ID         int64     `json:"id"`
	BatchID    string    `json:"batch_id"`
	OwnerID    string    `json:"owner_id"`
	Kind       string    `json:"kind"`
	Items      int       `json:"items"`
	Completed  int       `json:"completed"`
	Cost       int64     `json:"cost"`
	Refunded   bool      `json:"refunded"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// GenerationsResponse represents the JSON response for
// GET /admin/api/generations.
type GenerationsResponse struct {
	Events []GenerationEventResponse `json:"events"`
	Count  int                       `json:"count"`
	Total  int64                     `json:"total"`
	Limit  int                       `json:"limit"`
}

// HandleGenerations handles GET /admin/api/generations.
// Query parameters:
// - limit: number of events (default 50, max 500)
// - user: only events of this user
func (api *AdminAPI) HandleGenerations(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, api.config.DefaultLimit, api.config.MaxLimit)
	owner := strings.TrimSpace(r.URL.Query().Get("user"))

	events, err := api.config.Events.QueryRecentGenerationEvents(r.Context(), owner, limit)
	if err != nil {
		api.internalError(w, "failed to query generation events", err)
		return
	}
	total, err := api.config.Events.CountGenerationEvents(r.Context())
	if err != nil {
		api.internalError(w, "failed to count generation events", err)
		return
	}

	resp := GenerationsResponse{
		Events: make([]GenerationEventResponse, 0, len(events)),
		Total:  total,
		Limit:  limit,
	}
	for _, e := range events {
		resp.Events = append(resp.Events, GenerationEventResponse{
			ID:         e.ID,
			BatchID:    e.BatchID,
			OwnerID:    e.OwnerID,
			Kind:       e.Kind,
			Items:      e.Items,
			Completed:  e.Completed,
			Cost:       e.Cost,
			Refunded:   e.Refunded,
			Outcome:    e.Outcome,
			Error:      e.ErrorMessage,
			DurationMS: e.DurationMS,
			CreatedAt:  e.CreatedAt,
		})
	}
	resp.Count = len(resp.Events)
	writeJSON(w, http.StatusOK, resp)
}

func (api *AdminAPI) internalError(w http.ResponseWriter, msg string, err error) {
	api.logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal", msg)
}
