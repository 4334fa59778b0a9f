package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Product kinds.
const (
	KindProduct = "product"
	KindLogo    = "logo"
)

// Product is an uploaded catalog asset (a product photo or the brand logo).
type Product struct {
	ID          string
	OwnerID     string
	Name        string
	Kind        string
	StoragePath string
	PublicURL   string
	MIMEType    string
	SizeBytes   int64
	CreatedAt   time.Time
}

const productColumns = `id, owner_id, name, kind, storage_path, public_url, mime_type, size_bytes, created_at`

// InsertProduct stores a catalog asset row.
func (r *Repository) InsertProduct(ctx context.Context, p Product) error {
	if r.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO products (id, owner_id, name, kind, storage_path, public_url, mime_type, size_bytes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.Name, p.Kind, p.StoragePath, p.PublicURL, p.MIMEType, p.SizeBytes)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

// ListProducts returns the owner's assets in upload order.
func (r *Repository) ListProducts(ctx context.Context, ownerID string) ([]Product, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE owner_id = ? ORDER BY created_at, rowid`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product rows: %w", err)
	}
	return products, nil
}

// GetProduct returns one of the owner's assets, or ErrNotFound.
func (r *Repository) GetProduct(ctx context.Context, ownerID, id string) (Product, error) {
	if r.db == nil {
		return Product{}, fmt.Errorf("database connection is nil")
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE owner_id = ? AND id = ?`, ownerID, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("failed to query product: %w", err)
	}
	return p, nil
}

// CountProducts counts the owner's assets of one kind.
func (r *Repository) CountProducts(ctx context.Context, ownerID, kind string) (int, error) {
	if r.db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}

	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE owner_id = ? AND kind = ?`, ownerID, kind).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

// DeleteProduct removes one asset row, or returns ErrNotFound.
func (r *Repository) DeleteProduct(ctx context.Context, ownerID, id string) error {
	if r.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProducts removes every asset row of the owner and returns the count.
func (r *Repository) DeleteProducts(ctx context.Context, ownerID string) (int64, error) {
	if r.db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete products: %w", err)
	}
	return res.RowsAffected()
}

func scanProduct(row RowScanner) (Product, error) {
	var p Product
	var createdAt string
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Kind, &p.StoragePath, &p.PublicURL,
		&p.MIMEType, &p.SizeBytes, &createdAt)
	if err != nil {
		return Product{}, err
	}
	p.CreatedAt = parseTimestamp(createdAt)
	return p, nil
}
