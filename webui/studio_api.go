package webui

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"productstudio/catalog"
	"productstudio/db"
	"productstudio/gallery"
	"productstudio/imagegen"
	"productstudio/ledger"
	"productstudio/logging"
	"productstudio/studio"
)

// Interfaces consumed by StudioAPI. The concrete types from the studio,
// ledger, catalog, gallery and imagegen packages implement them.
type (
	// Studio runs metered generations. *studio.Orchestrator implements it.
	Studio interface {
		GenerateBatch(ctx context.Context, req studio.BatchRequest) (studio.BatchResult, error)
		EditImage(ctx context.Context, req studio.EditRequest) (studio.EditResult, error)
		Costs() studio.CostPolicy
	}

	// AccountReader reads balances and their history.
	AccountReader interface {
		Balance(ctx context.Context, userID string) (int64, error)
		History(ctx context.Context, userID string, limit int) ([]db.LedgerEntry, error)
	}

	// ProfileReader loads a single profile.
	ProfileReader interface {
		GetProfile(ctx context.Context, id string) (db.Profile, error)
	}

	// AssetCatalog manages a user's uploaded products and logo.
	AssetCatalog interface {
		Upload(ctx context.Context, ownerID string, in catalog.UploadInput) (catalog.Asset, error)
		List(ctx context.Context, ownerID string) ([]catalog.Asset, error)
		Delete(ctx context.Context, ownerID, id string) error
		Clear(ctx context.Context, ownerID string) (int64, error)
		SourceItems(ctx context.Context, ownerID string, ids []string) ([]imagegen.SourceItem, error)
	}

	// ImageGallery lists a user's generated images.
	ImageGallery interface {
		List(ctx context.Context, ownerID string, limit int) ([]gallery.Artifact, error)
		Get(ctx context.Context, ownerID, id string) (gallery.Artifact, error)
	}

	// Enhancer rewrites a prompt.
	Enhancer interface {
		Enhance(ctx context.Context, prompt string) (string, error)
	}
)

// StudioAPIConfig wires StudioAPI to its collaborators.
type StudioAPIConfig struct {
	Studio   Studio
	Accounts AccountReader
	Profiles ProfileReader
	Catalog  AssetCatalog
	Gallery  ImageGallery
	Progress ProgressSource
	Enhancer Enhancer
	Content  *studio.Catalog

	// MaxUploadBytes bounds a single product upload (default 2 MB)
	MaxUploadBytes int64

	// DefaultLimit and MaxLimit bound list endpoints
	DefaultLimit int
	MaxLimit     int
}

// StudioAPI serves the user-facing /api endpoints. Every handler expects
// the caller's id in the request context (see IdentityMiddleware).
type StudioAPI struct {
	config StudioAPIConfig
	logger *logging.Logger
}

// maxJSONBody bounds generate, edit and enhance request bodies.
const maxJSONBody = 64 * 1024

// multipartOverhead is the slack allowed above MaxUploadBytes for form fields.
const multipartOverhead = 64 * 1024

// NewStudioAPI creates the handler set.
func NewStudioAPI(config StudioAPIConfig, logger *logging.Logger) *StudioAPI {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = catalog.DefaultMaxUploadBytes
	}
	if config.DefaultLimit < 1 {
		config.DefaultLimit = 50
	}
	if config.MaxLimit < config.DefaultLimit {
		config.MaxLimit = 200
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &StudioAPI{config: config, logger: logger.Named("api")}
}

// RegisterRoutes mounts the endpoints on mux, each wrapped by protect.
func (api *StudioAPI) RegisterRoutes(mux *http.ServeMux, protect func(http.Handler) http.Handler) {
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, protect(fn))
	}

	handle("GET /api/me", api.HandleMe)
	handle("GET /api/ledger", api.HandleLedger)
	handle("GET /api/products", api.HandleListProducts)
	handle("POST /api/products", api.HandleUploadProduct)
	handle("DELETE /api/products", api.HandleClearProducts)
	handle("DELETE /api/products/{id}", api.HandleDeleteProduct)
	handle("POST /api/generate", api.HandleGenerate)
	handle("POST /api/edit", api.HandleEdit)
	handle("GET /api/gallery", api.HandleGallery)
	handle("GET /api/progress", api.HandleProgress)
	handle("POST /api/enhance", api.HandleEnhance)
	handle("GET /api/snippets", api.HandleSnippets)
	handle("GET /api/plans", api.HandlePlans)
}

// CostsResponse lists the token prices shown before a generation.
type CostsResponse struct {
	FirstItem int64 `json:"first_item"`
	ExtraItem int64 `json:"extra_item"`
	TextOnly  int64 `json:"text_only"`
	Edit      int64 `json:"edit"`
}

// MeResponse represents the JSON response for /api/me.
type MeResponse struct {
	ID           string        `json:"id"`
	Email        string        `json:"email,omitempty"`
	TokenBalance int64         `json:"token_balance"`
	Costs        CostsResponse `json:"costs"`
	CreatedAt    time.Time     `json:"created_at"`
}

// HandleMe handles GET /api/me.
func (api *StudioAPI) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	profile, err := api.config.Profiles.GetProfile(r.Context(), userID)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no profile for this account")
		return
	}
	if err != nil {
		api.internalError(w, "failed to load profile", userID, err)
		return
	}

	costs := api.config.Studio.Costs()
	writeJSON(w, http.StatusOK, MeResponse{
		ID:           profile.ID,
		Email:        profile.Email,
		TokenBalance: profile.TokenBalance,
		Costs: CostsResponse{
			FirstItem: costs.FirstItem,
			ExtraItem: costs.ExtraItem,
			TextOnly:  costs.TextOnly,
			Edit:      costs.Edit,
		},
		CreatedAt: profile.CreatedAt,
	})
}

// LedgerEntryResponse is one balance change.
type LedgerEntryResponse struct {
	Delta        int64     `json:"delta"`
	BalanceAfter int64     `json:"balance_after"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// LedgerResponse represents the JSON response for /api/ledger.
type LedgerResponse struct {
	Balance int64                 `json:"balance"`
	Entries []LedgerEntryResponse `json:"entries"`
	Count   int                   `json:"count"`
}

// HandleLedger handles GET /api/ledger.
// Query parameters:
// - limit: number of entries to return (default 50)
func (api *StudioAPI) HandleLedger(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	limit := api.limit(r)

	entries, err := api.config.Accounts.History(r.Context(), userID, limit)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no profile for this account")
		return
	}
	if err != nil {
		api.internalError(w, "failed to load ledger", userID, err)
		return
	}
	balance, err := api.config.Accounts.Balance(r.Context(), userID)
	if err != nil {
		api.internalError(w, "failed to load balance", userID, err)
		return
	}

	out := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, LedgerEntryResponse{
			Delta:        e.Delta,
			BalanceAfter: e.BalanceAfter,
			Reason:       e.Reason,
			CreatedAt:    e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, LedgerResponse{Balance: balance, Entries: out, Count: len(out)})
}

// ProductsResponse represents the JSON response for /api/products.
type ProductsResponse struct {
	Products []catalog.Asset `json:"products"`
	Count    int             `json:"count"`
}

// HandleListProducts handles GET /api/products.
func (api *StudioAPI) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	assets, err := api.config.Catalog.List(r.Context(), userID)
	if err != nil {
		api.internalError(w, "failed to list products", userID, err)
		return
	}
	if assets == nil {
		assets = []catalog.Asset{}
	}
	writeJSON(w, http.StatusOK, ProductsResponse{Products: assets, Count: len(assets)})
}

// HandleUploadProduct handles POST /api/products as multipart/form-data with
// fields file, name and kind (product or logo).
func (api *StudioAPI) HandleUploadProduct(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	maxBytes := api.config.MaxUploadBytes

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "image exceeds the upload size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "expected a multipart form with a file field")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing file")
		return
	}
	defer file.Close()

	// One byte past the limit is enough for the catalog to reject it.
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "could not read file")
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = header.Filename
	}
	kind := strings.TrimSpace(r.FormValue("kind"))
	if kind == "" {
		kind = catalog.KindProduct
	}

	asset, err := api.config.Catalog.Upload(r.Context(), userID, catalog.UploadInput{
		Name:     name,
		Kind:     kind,
		Data:     data,
		MIMEType: declaredType(header.Header.Get("Content-Type")),
	})
	if err != nil {
		api.writeCatalogError(w, userID, err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

// HandleDeleteProduct handles DELETE /api/products/{id}.
func (api *StudioAPI) HandleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	if err := api.config.Catalog.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		api.writeCatalogError(w, userID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleClearProducts handles DELETE /api/products.
func (api *StudioAPI) HandleClearProducts(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	n, err := api.config.Catalog.Clear(r.Context(), userID)
	if err != nil {
		api.writeCatalogError(w, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// GenerateRequest is the body of POST /api/generate. An empty ProductIDs
// runs a text-only generation.
type GenerateRequest struct {
	Prompt     string   `json:"prompt"`
	ProductIDs []string `json:"product_ids"`
}

// GenerateResponse represents the JSON response for /api/generate.
type GenerateResponse struct {
	BatchID string             `json:"batch_id"`
	Cost    int64              `json:"cost"`
	Images  []gallery.Artifact `json:"images"`
	Balance *int64             `json:"balance,omitempty"`
}

// HandleGenerate handles POST /api/generate.
func (api *StudioAPI) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	var req GenerateRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, string(studio.KindInvalidRequest), "invalid request body")
		return
	}

	var items []imagegen.SourceItem
	if len(req.ProductIDs) > 0 {
		var err error
		items, err = api.config.Catalog.SourceItems(r.Context(), userID, req.ProductIDs)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			writeError(w, http.StatusBadRequest, string(studio.KindInvalidRequest), "one or more selected products no longer exist")
			return
		case errors.Is(err, catalog.ErrDuplicateSelection):
			writeError(w, http.StatusBadRequest, string(studio.KindInvalidRequest), "each product can be selected only once")
			return
		case errors.Is(err, catalog.ErrTooManySelected):
			writeError(w, http.StatusBadRequest, string(studio.KindInvalidRequest), "too many products selected")
			return
		}
		if err != nil {
			api.internalError(w, "failed to load selected products", userID, err)
			return
		}
	}

	result, err := api.config.Studio.GenerateBatch(r.Context(), studio.BatchRequest{
		UserID: userID,
		Prompt: req.Prompt,
		Items:  items,
	})
	if err != nil {
		writeStudioError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, GenerateResponse{
		BatchID: result.BatchID,
		Cost:    result.Cost,
		Images:  result.Artifacts,
		Balance: api.balance(r.Context(), userID),
	})
}

// EditRequest is the body of POST /api/edit.
type EditRequest struct {
	ImageID string `json:"image_id"`
	Prompt  string `json:"prompt"`
}

// EditResponse represents the JSON response for /api/edit.
type EditResponse struct {
	BatchID string           `json:"batch_id"`
	Cost    int64            `json:"cost"`
	Image   gallery.Artifact `json:"image"`
	Balance *int64           `json:"balance,omitempty"`
}

// HandleEdit handles POST /api/edit. The source is one of the caller's
// own generated images.
func (api *StudioAPI) HandleEdit(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	var req EditRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, string(studio.KindInvalidRequest), "invalid request body")
		return
	}
	if strings.TrimSpace(req.ImageID) == "" {
		writeError(w, http.StatusBadRequest, string(studio.KindInvalidRequest), "image_id is required")
		return
	}

	original, err := api.config.Gallery.Get(r.Context(), userID, req.ImageID)
	if errors.Is(err, gallery.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "image not found")
		return
	}
	if err != nil {
		api.internalError(w, "failed to load image", userID, err)
		return
	}

	result, err := api.config.Studio.EditImage(r.Context(), studio.EditRequest{
		UserID: userID,
		Prompt: req.Prompt,
		Source: imagegen.SourceItem{ID: original.ID, URL: original.PublicURL},
	})
	if err != nil {
		writeStudioError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, EditResponse{
		BatchID: result.BatchID,
		Cost:    result.Cost,
		Image:   result.Artifact,
		Balance: api.balance(r.Context(), userID),
	})
}

// GalleryResponse represents the JSON response for /api/gallery.
type GalleryResponse struct {
	Images []gallery.Artifact `json:"images"`
	Count  int                `json:"count"`
	Limit  int                `json:"limit"`
}

// HandleGallery handles GET /api/gallery, most recent first.
func (api *StudioAPI) HandleGallery(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	limit := api.limit(r)

	images, err := api.config.Gallery.List(r.Context(), userID, limit)
	if err != nil {
		api.internalError(w, "failed to list gallery", userID, err)
		return
	}
	if images == nil {
		images = []gallery.Artifact{}
	}
	writeJSON(w, http.StatusOK, GalleryResponse{Images: images, Count: len(images), Limit: limit})
}

// ProgressResponse represents the JSON response for /api/progress.
type ProgressResponse struct {
	Active   bool          `json:"active"`
	Progress *ProgressData `json:"progress,omitempty"`
}

// HandleProgress handles GET /api/progress, the polling twin of /ws/progress.
func (api *StudioAPI) HandleProgress(w http.ResponseWriter, r *http.Request) {
	p, ok := api.config.Progress.Get(UserIDFromContext(r.Context()))
	if !ok {
		writeJSON(w, http.StatusOK, ProgressResponse{})
		return
	}
	data := NewProgressData(p)
	writeJSON(w, http.StatusOK, ProgressResponse{Active: p.Running, Progress: &data})
}

// EnhanceRequest is the body of POST /api/enhance.
type EnhanceRequest struct {
	Prompt string `json:"prompt"`
}

// EnhanceResponse carries the rewritten prompt.
type EnhanceResponse struct {
	Prompt string `json:"prompt"`
}

// HandleEnhance handles POST /api/enhance. Enhancing is free.
func (api *StudioAPI) HandleEnhance(w http.ResponseWriter, r *http.Request) {
	if api.config.Enhancer == nil {
		writeError(w, http.StatusServiceUnavailable, string(studio.KindUnavailable), "prompt enhancement is not configured")
		return
	}

	var req EnhanceRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, string(studio.KindInvalidRequest), "invalid request body")
		return
	}

	enhanced, err := api.config.Enhancer.Enhance(r.Context(), req.Prompt)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, EnhanceResponse{Prompt: enhanced})
	case errors.Is(err, imagegen.ErrEmptyPrompt):
		writeError(w, http.StatusBadRequest, string(studio.KindInvalidRequest), "enter a prompt to enhance")
	case errors.Is(err, imagegen.ErrContentRejected):
		writeError(w, http.StatusUnprocessableEntity, string(studio.KindContentRejected), "the prompt was rejected by the content filter")
	default:
		api.logger.Warn("prompt enhancement failed", logging.UserField(UserIDFromContext(r.Context())), zap.Error(err))
		writeError(w, http.StatusBadGateway, string(studio.KindGenerationFailed), "could not enhance the prompt, try again")
	}
}

// SnippetsResponse represents the JSON response for /api/snippets.
type SnippetsResponse struct {
	SnippetCategories []studio.SnippetCategory `json:"snippet_categories"`
}

// HandleSnippets handles GET /api/snippets.
func (api *StudioAPI) HandleSnippets(w http.ResponseWriter, r *http.Request) {
	resp := SnippetsResponse{SnippetCategories: []studio.SnippetCategory{}}
	if api.config.Content != nil {
		resp.SnippetCategories = api.config.Content.SnippetCategories
	}
	writeJSON(w, http.StatusOK, resp)
}

// PlansResponse represents the JSON response for /api/plans.
type PlansResponse struct {
	Plans      []studio.Plan      `json:"plans"`
	TokenPacks []studio.TokenPack `json:"token_packs"`
	Currency   string             `json:"currency"`
}

// HandlePlans handles GET /api/plans.
func (api *StudioAPI) HandlePlans(w http.ResponseWriter, r *http.Request) {
	resp := PlansResponse{Plans: []studio.Plan{}, TokenPacks: []studio.TokenPack{}}
	if c := api.config.Content; c != nil {
		resp.Plans = c.Plans
		resp.TokenPacks = c.TokenPacks
		resp.Currency = c.Currency
	}
	writeJSON(w, http.StatusOK, resp)
}

func (api *StudioAPI) limit(r *http.Request) int {
	return parseLimit(r, api.config.DefaultLimit, api.config.MaxLimit)
}

// balance returns the caller's balance after a generation, or nil if it
// cannot be read. The generation itself already succeeded.
func (api *StudioAPI) balance(ctx context.Context, userID string) *int64 {
	b, err := api.config.Accounts.Balance(ctx, userID)
	if err != nil {
		return nil
	}
	return &b
}

func (api *StudioAPI) writeCatalogError(w http.ResponseWriter, userID string, err error) {
	switch {
	case errors.Is(err, catalog.ErrInvalidKind), errors.Is(err, catalog.ErrInvalidImage):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, catalog.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
	case errors.Is(err, catalog.ErrLimitReached):
		writeError(w, http.StatusConflict, "limit_reached", err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "product not found")
	default:
		api.internalError(w, "catalog operation failed", userID, err)
	}
}

func (api *StudioAPI) internalError(w http.ResponseWriter, msg, userID string, err error) {
	api.logger.Error(msg, logging.UserField(userID), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal", "something went wrong, try again")
}

// declaredType drops the generic type clients send for unknown files so
// the catalog sniffs the content instead.
func declaredType(contentType string) string {
	if imagegen.NormalizeMIME(contentType) == "application/octet-stream" {
		return ""
	}
	return contentType
}

// parseLimit reads the limit query parameter, clamped to [1, maxLimit].
func parseLimit(r *http.Request, def, maxLimit int) int {
	limit := def
	if s := r.URL.Query().Get("limit"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}
