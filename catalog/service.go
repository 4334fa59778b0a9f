// Package catalog manages the product photos and brand logo a user can pick
// as source items for a generation.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"productstudio/blobstore"
	"productstudio/db"
	"productstudio/imagegen"
	"productstudio/imaging"
	"productstudio/logging"
)

// Asset kinds.
const (
	KindProduct = db.KindProduct
	KindLogo    = db.KindLogo
)

// Default limits.
const (
	DefaultMaxProducts    = 7
	DefaultMaxUploadBytes = 2 * 1024 * 1024
)

// Errors returned by the Service.
var (
	ErrInvalidKind  = errors.New("catalog: kind must be product or logo")
	ErrInvalidImage = errors.New("catalog: file is not a supported image")
	ErrTooLarge     = errors.New("catalog: image exceeds the upload size limit")
	ErrLimitReached = errors.New("catalog: product limit reached")
	ErrNotFound     = errors.New("catalog: asset not found")
	ErrStorage      = errors.New("catalog: failed to store asset")

	ErrDuplicateSelection = errors.New("catalog: an asset was selected more than once")
	ErrTooManySelected    = errors.New("catalog: too many assets selected")
)

// Asset is an uploaded product photo or logo.
type Asset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind"`
	PublicURL   string    `json:"public_url"`
	MIMEType    string    `json:"mime_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StoragePath string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// UploadInput is one file to add to the catalog.
type UploadInput struct {
	Name     string
	Kind     string
	Data     []byte
	MIMEType string
}

// Store persists asset rows. *db.Repository implements it.
type Store interface {
	InsertProduct(ctx context.Context, p db.Product) error
	ListProducts(ctx context.Context, ownerID string) ([]db.Product, error)
	GetProduct(ctx context.Context, ownerID, id string) (db.Product, error)
	CountProducts(ctx context.Context, ownerID, kind string) (int, error)
	DeleteProduct(ctx context.Context, ownerID, id string) error
	DeleteProducts(ctx context.Context, ownerID string) (int64, error)
}

// BlobStore stores asset files. *blobstore.Local implements it.
type BlobStore interface {
	Put(ctx context.Context, bucket, objectPath string, data []byte) error
	Delete(ctx context.Context, bucket, objectPath string) error
	DeletePrefix(ctx context.Context, bucket, prefix string) error
	PublicURL(bucket, objectPath string) string
}

// Config holds catalog limits.
type Config struct {
	MaxProducts    int
	MaxUploadBytes int64
}

// DefaultConfig returns the standard limits: 7 products of at most 2 MB.
func DefaultConfig() Config {
	return Config{
		MaxProducts:    DefaultMaxProducts,
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

// Service manages catalog assets.
type Service struct {
	store  Store
	blobs  BlobStore
	config Config
	logger *logging.Logger
}

// NewService creates a Service. Non-positive limits fall back to the defaults.
func NewService(store Store, blobs BlobStore, config Config, logger *logging.Logger) *Service {
	if config.MaxProducts <= 0 {
		config.MaxProducts = DefaultMaxProducts
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{
		store:  store,
		blobs:  blobs,
		config: config,
		logger: logger.Named("catalog"),
	}
}

// Upload validates and stores one asset. A new logo replaces the previous one.
func (s *Service) Upload(ctx context.Context, ownerID string, in UploadInput) (Asset, error) {
	kind := strings.ToLower(strings.TrimSpace(in.Kind))
	if kind == "" {
		kind = KindProduct
	}
	if kind != KindProduct && kind != KindLogo {
		return Asset{}, ErrInvalidKind
	}

	mimeType, err := s.validate(in)
	if err != nil {
		return Asset{}, err
	}

	var previousLogos []db.Product
	if kind == KindProduct {
		count, err := s.store.CountProducts(ctx, ownerID, KindProduct)
		if err != nil {
			return Asset{}, fmt.Errorf("catalog: count products: %w", err)
		}
		if count >= s.config.MaxProducts {
			return Asset{}, fmt.Errorf("%w: at most %d products", ErrLimitReached, s.config.MaxProducts)
		}
	} else {
		existing, err := s.store.ListProducts(ctx, ownerID)
		if err != nil {
			return Asset{}, fmt.Errorf("catalog: list assets: %w", err)
		}
		for _, p := range existing {
			if p.Kind == KindLogo {
				previousLogos = append(previousLogos, p)
			}
		}
	}

	id := uuid.NewString()
	objectPath := path.Join(ownerID, id+blobstore.ExtensionForMIME(mimeType))
	log := s.logger.With(logging.UserField(ownerID), zap.String("kind", kind), zap.String("path", objectPath))

	if err := s.blobs.Put(ctx, blobstore.BucketProducts, objectPath, in.Data); err != nil {
		log.Error("failed to upload asset", zap.Error(err))
		return Asset{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = id
	}
	row := db.Product{
		ID:          id,
		OwnerID:     ownerID,
		Name:        name,
		Kind:        kind,
		StoragePath: objectPath,
		PublicURL:   s.blobs.PublicURL(blobstore.BucketProducts, objectPath),
		MIMEType:    mimeType,
		SizeBytes:   int64(len(in.Data)),
	}
	if err := s.store.InsertProduct(ctx, row); err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), blobstore.BucketProducts, objectPath); delErr != nil {
			log.Warn("failed to remove orphaned asset blob", zap.Error(delErr))
		}
		return Asset{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	for _, old := range previousLogos {
		if err := s.remove(ctx, old); err != nil {
			log.Warn("failed to remove replaced logo", zap.String("logo_id", old.ID), zap.Error(err))
		}
	}

	log.Info("asset uploaded", zap.Int64("bytes", row.SizeBytes))
	row.CreatedAt = time.Now().UTC()
	return s.fromRow(row), nil
}

// validate checks size, declared type and decodability and returns the
// MIME type to store.
func (s *Service) validate(in UploadInput) (string, error) {
	if len(in.Data) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrInvalidImage)
	}
	if int64(len(in.Data)) > s.config.MaxUploadBytes {
		return "", fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(in.Data), s.config.MaxUploadBytes)
	}
	declared := imagegen.NormalizeMIME(in.MIMEType)
	if declared != "" && !strings.HasPrefix(declared, "image/") {
		return "", fmt.Errorf("%w: type %s", ErrInvalidImage, declared)
	}
	info, err := imaging.Inspect(in.Data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return info.MIMEType, nil
}

// List returns the owner's assets in upload order.
func (s *Service) List(ctx context.Context, ownerID string) ([]Asset, error) {
	rows, err := s.store.ListProducts(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list assets: %w", err)
	}
	assets := make([]Asset, 0, len(rows))
	for _, row := range rows {
		assets = append(assets, s.fromRow(row))
	}
	return assets, nil
}

// Delete removes one asset and its file.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	row, err := s.store.GetProduct(ctx, ownerID, id)
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("catalog: get asset: %w", err)
	}
	return s.remove(ctx, row)
}

func (s *Service) remove(ctx context.Context, row db.Product) error {
	if err := s.store.DeleteProduct(ctx, row.OwnerID, row.ID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("catalog: delete asset: %w", err)
	}
	if err := s.blobs.Delete(ctx, blobstore.BucketProducts, row.StoragePath); err != nil {
		return fmt.Errorf("catalog: delete asset file: %w", err)
	}
	return nil
}

// Clear removes every file of the owner, then every row.
func (s *Service) Clear(ctx context.Context, ownerID string) (int64, error) {
	if ownerID == "" {
		return 0, fmt.Errorf("catalog: owner is required")
	}
	if err := s.blobs.DeletePrefix(ctx, blobstore.BucketProducts, ownerID); err != nil {
		return 0, fmt.Errorf("catalog: delete asset files: %w", err)
	}
	n, err := s.store.DeleteProducts(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("catalog: delete assets: %w", err)
	}
	s.logger.Info("catalog cleared", logging.UserField(ownerID), zap.Int64("assets", n))
	return n, nil
}

// SourceItems maps the selected asset ids to URL-backed source items, in the
// order given. Any unknown id fails the whole selection, as does a repeated
// id or more ids than MaxProducts plus the logo.
//
// URLs are derived from the storage path on every call, so rows written
// under an earlier public base URL still resolve.
func (s *Service) SourceItems(ctx context.Context, ownerID string, ids []string) ([]imagegen.SourceItem, error) {
	if limit := s.config.MaxProducts + 1; len(ids) > limit {
		return nil, fmt.Errorf("%w: %d selected (limit %d)", ErrTooManySelected, len(ids), limit)
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSelection, id)
		}
		seen[id] = struct{}{}
	}

	items := make([]imagegen.SourceItem, 0, len(ids))
	for _, id := range ids {
		row, err := s.store.GetProduct(ctx, ownerID, id)
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: get asset: %w", err)
		}
		items = append(items, imagegen.SourceItem{
			ID:    row.ID,
			Label: row.Name,
			URL:   s.blobs.PublicURL(blobstore.BucketProducts, row.StoragePath),
		})
	}
	return items, nil
}

func (s *Service) fromRow(row db.Product) Asset {
	return Asset{
		ID:          row.ID,
		Name:        row.Name,
		Kind:        row.Kind,
		PublicURL:   s.blobs.PublicURL(blobstore.BucketProducts, row.StoragePath),
		MIMEType:    row.MIMEType,
		SizeBytes:   row.SizeBytes,
		StoragePath: row.StoragePath,
		CreatedAt:   row.CreatedAt,
	}
}
