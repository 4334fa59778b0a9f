package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Profile is a studio user and their token balance.
type Profile struct {
	ID           string
	Email        string
	TokenBalance int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LedgerEntry records one committed balance change.
type LedgerEntry struct {
	ID           int64
	ProfileID    string
	Delta        int64 // Negative for debits
	BalanceAfter int64
	Reason       string
	CreatedAt    time.Time
}

const profileColumns = `id, email, token_balance, created_at, updated_at`

// EnsureProfile creates the profile with initialBalance if it does not exist
// and returns it. created reports whether a row was inserted; an opening
// grant is written to the ledger in the same transaction.
func (r *Repository) EnsureProfile(ctx context.Context, id, email string, initialBalance int64) (Profile, bool, error) {
	if r.db == nil {
		return Profile{}, false, fmt.Errorf("database connection is nil")
	}

	var created bool
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO profiles (id, email, token_balance) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
			id, email, initialBalance)
		if err != nil {
			return fmt.Errorf("failed to insert profile: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		created = n == 1
		if created && initialBalance > 0 {
			return insertLedgerEntry(ctx, tx, id, initialBalance, initialBalance, "initial grant")
		}
		return nil
	})
	if err != nil {
		return Profile{}, false, err
	}

	p, err := r.GetProfile(ctx, id)
	return p, created, err
}

// GetProfile returns the profile with id, or ErrNotFound.
func (r *Repository) GetProfile(ctx context.Context, id string) (Profile, error) {
	if r.db == nil {
		return Profile{}, fmt.Errorf("database connection is nil")
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("failed to query profile: %w", err)
	}
	return p, nil
}

// ListProfiles returns profiles oldest first.
func (r *Repository) ListProfiles(ctx context.Context, limit, offset int) ([]Profile, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles ORDER BY created_at, id LIMIT ? OFFSET ?`,
		sqlLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profile rows: %w", err)
	}
	return profiles, nil
}

// DeleteProfile removes a profile; ledger entries, products and generated
// image rows cascade. Blobs are the caller's responsibility.
func (r *Repository) DeleteProfile(ctx context.Context, id string) error {
	if r.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DebitTokens subtracts amount from the balance in a single conditional
// update, so the balance cannot go negative even under concurrent callers.
// It returns the new balance, ErrInsufficientBalance or ErrNotFound; on
// either error nothing is written.
func (r *Repository) DebitTokens(ctx context.Context, id string, amount int64, reason string) (int64, error) {
	if r.db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}

	var balance int64
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`UPDATE profiles
			 SET token_balance = token_balance - ?, updated_at = `+timestampExpr+`
			 WHERE id = ? AND token_balance >= ?
			 RETURNING token_balance`,
			amount, id, amount).Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			var exists int
			if err := tx.QueryRowContext(ctx, `SELECT 1 FROM profiles WHERE id = ?`, id).Scan(&exists); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ErrNotFound
				}
				return fmt.Errorf("failed to check profile: %w", err)
			}
			return ErrInsufficientBalance
		}
		if err != nil {
			return fmt.Errorf("failed to debit tokens: %w", err)
		}
		return insertLedgerEntry(ctx, tx, id, -amount, balance, reason)
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// CreditTokens adds amount to the balance and returns the new balance.
func (r *Repository) CreditTokens(ctx context.Context, id string, amount int64, reason string) (int64, error) {
	if r.db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}

	var balance int64
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`UPDATE profiles
			 SET token_balance = token_balance + ?, updated_at = `+timestampExpr+`
			 WHERE id = ?
			 RETURNING token_balance`,
			amount, id).Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to credit tokens: %w", err)
		}
		return insertLedgerEntry(ctx, tx, id, amount, balance, reason)
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// ListLedgerEntries returns a profile's entries newest first.
func (r *Repository) ListLedgerEntries(ctx context.Context, profileID string, limit int) ([]LedgerEntry, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, profile_id, delta, balance_after, reason, created_at
		 FROM ledger_entries
		 WHERE profile_id = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		profileID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.Delta, &e.BalanceAfter, &e.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry row: %w", err)
		}
		e.CreatedAt = parseTimestamp(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entry rows: %w", err)
	}
	return entries, nil
}

func insertLedgerEntry(ctx context.Context, tx *sql.Tx, profileID string, delta, balanceAfter int64, reason string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (profile_id, delta, balance_after, reason) VALUES (?, ?, ?, ?)`,
		profileID, delta, balanceAfter, reason)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func scanProfile(row RowScanner) (Profile, error) {
	var p Profile
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.Email, &p.TokenBalance, &createdAt, &updatedAt); err != nil {
		return Profile{}, err
	}
	p.CreatedAt = parseTimestamp(createdAt)
	p.UpdatedAt = parseTimestamp(updatedAt)
	return p, nil
}
