package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GeneratedImage is the metadata row of a persisted generation artifact.
type GeneratedImage struct {
	ID          string
	OwnerID     string
	Prompt      string
	StoragePath string
	PublicURL   string
	MIMEType    string
	CreatedAt   time.Time
}

const imageColumns = `id, owner_id, prompt, storage_path, public_url, mime_type, created_at`

// InsertGeneratedImage stores an artifact row and returns it with CreatedAt set.
func (r *Repository) InsertGeneratedImage(ctx context.Context, img GeneratedImage) (GeneratedImage, error) {
	if r.db == nil {
		return GeneratedImage{}, fmt.Errorf("database connection is nil")
	}

	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO generated_images (id, owner_id, prompt, storage_path, public_url, mime_type)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING created_at`,
		img.ID, img.OwnerID, img.Prompt, img.StoragePath, img.PublicURL, img.MIMEType).Scan(&createdAt)
	if err != nil {
		return GeneratedImage{}, fmt.Errorf("failed to insert generated image: %w", err)
	}
	img.CreatedAt = parseTimestamp(createdAt)
	return img, nil
}

// ListGeneratedImages returns the owner's artifacts most recent first.
// A non-positive limit returns all of them.
func (r *Repository) ListGeneratedImages(ctx context.Context, ownerID string, limit int) ([]GeneratedImage, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+imageColumns+` FROM generated_images
		 WHERE owner_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		ownerID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query generated images: %w", err)
	}
	defer rows.Close()

	var images []GeneratedImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generated image row: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating generated image rows: %w", err)
	}
	return images, nil
}

// GetGeneratedImage returns one of the owner's artifacts, or ErrNotFound.
func (r *Repository) GetGeneratedImage(ctx context.Context, ownerID, id string) (GeneratedImage, error) {
	if r.db == nil {
		return GeneratedImage{}, fmt.Errorf("database connection is nil")
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM generated_images WHERE owner_id = ? AND id = ?`, ownerID, id)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return GeneratedImage{}, ErrNotFound
	}
	if err != nil {
		return GeneratedImage{}, fmt.Errorf("failed to query generated image: %w", err)
	}
	return img, nil
}

// CountGeneratedImages returns the number of artifacts across all owners.
func (r *Repository) CountGeneratedImages(ctx context.Context) (int64, error) {
	if r.db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generated_images`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count generated images: %w", err)
	}
	return count, nil
}

func scanImage(row RowScanner) (GeneratedImage, error) {
	var img GeneratedImage
	var createdAt string
	err := row.Scan(&img.ID, &img.OwnerID, &img.Prompt, &img.StoragePath, &img.PublicURL, &img.MIMEType, &createdAt)
	if err != nil {
		return GeneratedImage{}, err
	}
	img.CreatedAt = parseTimestamp(createdAt)
	return img, nil
}
