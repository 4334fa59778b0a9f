// Package gallery persists generated images and lists a user's gallery.
//
// An artifact is stored in two places: the image bytes in the blob store and
// a metadata row in the database. Persist writes the blob first and removes
// it again when the row cannot be written, so a failed call leaves nothing
// behind.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"productstudio/blobstore"
	"productstudio/db"
	"productstudio/imagegen"
	"productstudio/logging"
)

// Errors returned by the Persister.
var (
	ErrStorage  = errors.New("gallery: failed to store image")
	ErrMetadata = errors.New("gallery: failed to record image metadata")
	ErrNotFound = errors.New("gallery: image not found")
)

// Artifact is a persisted generated image.
type Artifact struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Prompt      string    `json:"prompt"`
	StoragePath string    `json:"storage_path"`
	PublicURL   string    `json:"public_url"`
	MIMEType    string    `json:"mime_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// BlobStore is the write side of the blob store. *blobstore.Local implements it.
type BlobStore interface {
	Put(ctx context.Context, bucket, objectPath string, data []byte) error
	Delete(ctx context.Context, bucket, objectPath string) error
	DeletePrefix(ctx context.Context, bucket, prefix string) error
	PublicURL(bucket, objectPath string) string
}

// MetadataStore holds artifact rows. *db.Repository implements it.
type MetadataStore interface {
	InsertGeneratedImage(ctx context.Context, img db.GeneratedImage) (db.GeneratedImage, error)
	ListGeneratedImages(ctx context.Context, ownerID string, limit int) ([]db.GeneratedImage, error)
	GetGeneratedImage(ctx context.Context, ownerID, id string) (db.GeneratedImage, error)
}

// Persister stores generated images.
//
// Thread Safety: Persister is safe for concurrent use.
type Persister struct {
	blobs  BlobStore
	meta   MetadataStore
	logger *logging.Logger
	newID  func() string
}

// NewPersister creates a Persister.
func NewPersister(blobs BlobStore, meta MetadataStore, logger *logging.Logger) *Persister {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Persister{
		blobs:  blobs,
		meta:   meta,
		logger: logger.Named("gallery"),
		newID:  uuid.NewString,
	}
}

// Persist uploads image to the generated_images bucket at
// {ownerID}/{uuid}{ext}, records its metadata row and returns the artifact
// with its public URL. Upload failures wrap ErrStorage; row failures wrap
// ErrMetadata after the uploaded blob has been deleted.
func (p *Persister) Persist(ctx context.Context, image imagegen.EncodedImage, prompt, ownerID string) (Artifact, error) {
	if ownerID == "" {
		return Artifact{}, fmt.Errorf("%w: owner is required", ErrMetadata)
	}

	data, err := image.Bytes()
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if len(data) == 0 {
		return Artifact{}, fmt.Errorf("%w: image is empty", ErrStorage)
	}

	mimeType := imagegen.NormalizeMIME(image.MIMEType)
	if mimeType == "" {
		mimeType = "image/png"
	}
	id := p.newID()
	objectPath := path.Join(ownerID, id+blobstore.ExtensionForMIME(mimeType))

	log := p.logger.With(logging.UserField(ownerID), zap.String("path", objectPath))

	if err := p.blobs.Put(ctx, blobstore.BucketGeneratedImages, objectPath, data); err != nil {
		log.Error("failed to upload generated image", zap.Error(err))
		return Artifact{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	row, err := p.meta.InsertGeneratedImage(ctx, db.GeneratedImage{
		ID:          id,
		OwnerID:     ownerID,
		Prompt:      prompt,
		StoragePath: objectPath,
		PublicURL:   p.blobs.PublicURL(blobstore.BucketGeneratedImages, objectPath),
		MIMEType:    mimeType,
	})
	if err != nil {
		// The caller's context may already be done; the orphan still has to go.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if delErr := p.blobs.Delete(cleanupCtx, blobstore.BucketGeneratedImages, objectPath); delErr != nil {
			log.Error("failed to remove orphaned blob", zap.Error(delErr))
		}
		log.Error("failed to insert generated image row", zap.Error(err))
		return Artifact{}, fmt.Errorf("%w: %v", ErrMetadata, err)
	}

	log.Debug("generated image persisted", zap.Int("bytes", len(data)))
	return p.fromRow(row), nil
}

// List returns the owner's artifacts most recent first. A non-positive
// limit returns all of them.
func (p *Persister) List(ctx context.Context, ownerID string, limit int) ([]Artifact, error) {
	rows, err := p.meta.ListGeneratedImages(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("gallery: list images: %w", err)
	}
	artifacts := make([]Artifact, 0, len(rows))
	for _, row := range rows {
		artifacts = append(artifacts, p.fromRow(row))
	}
	return artifacts, nil
}

// Get returns one of the owner's artifacts, or ErrNotFound.
func (p *Persister) Get(ctx context.Context, ownerID, id string) (Artifact, error) {
	row, err := p.meta.GetGeneratedImage(ctx, ownerID, id)
	if errors.Is(err, db.ErrNotFound) {
		return Artifact{}, ErrNotFound
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("gallery: get image: %w", err)
	}
	return p.fromRow(row), nil
}

// DeleteOwner removes every blob of ownerID. Rows go with the profile.
func (p *Persister) DeleteOwner(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return fmt.Errorf("gallery: owner is required")
	}
	if err := p.blobs.DeletePrefix(ctx, blobstore.BucketGeneratedImages, ownerID); err != nil {
		return fmt.Errorf("gallery: delete images of %s: %w", ownerID, err)
	}
	return nil
}

// fromRow derives the public URL from the storage path, so artifacts stored
// under an earlier public base URL stay reachable.
func (p *Persister) fromRow(row db.GeneratedImage) Artifact {
	return Artifact{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Prompt:      row.Prompt,
		StoragePath: row.StoragePath,
		PublicURL:   p.blobs.PublicURL(blobstore.BucketGeneratedImages, row.StoragePath),
		MIMEType:    row.MIMEType,
		CreatedAt:   row.CreatedAt,
	}
}
