// Package ledger owns every change to a user's token balance. Debits are a
// single conditional update, so a balance never goes negative even when
// several requests race for the same tokens.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"productstudio/db"
	"productstudio/logging"
)

// Errors returned by the ledger.
var (
	ErrInsufficientBalance = errors.New("ledger: insufficient token balance")
	ErrAccountNotFound     = errors.New("ledger: account not found")
	ErrNegativeAmount      = errors.New("ledger: amount must not be negative")
)

// Store is the persistence the ledger needs. *db.Repository implements it.
type Store interface {
	EnsureProfile(ctx context.Context, id, email string, initialBalance int64) (db.Profile, bool, error)
	GetProfile(ctx context.Context, id string) (db.Profile, error)
	DebitTokens(ctx context.Context, id string, amount int64, reason string) (int64, error)
	CreditTokens(ctx context.Context, id string, amount int64, reason string) (int64, error)
	ListLedgerEntries(ctx context.Context, profileID string, limit int) ([]db.LedgerEntry, error)
}

// Ledger debits and credits token balances.
type Ledger struct {
	store          Store
	initialBalance int64
	logger         *logging.Logger
}

// New creates a Ledger. initialBalance is granted to profiles created
// through Provision.
func New(store Store, initialBalance int64, logger *logging.Logger) *Ledger {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Ledger{
		store:          store,
		initialBalance: initialBalance,
		logger:         logger.Named("ledger"),
	}
}

// Debit removes amount tokens from userID's balance, or fails without
// changing anything. Callers must treat any error as "cannot proceed".
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64, reason string) error {
	if amount < 0 {
		return ErrNegativeAmount
	}
	if amount == 0 {
		_, err := l.Balance(ctx, userID)
		return err
	}

	balance, err := l.store.DebitTokens(ctx, userID, amount, reason)
	if err != nil {
		err = translate(err)
		l.logger.Warn("debit rejected",
			logging.UserField(userID),
			zap.Int64("amount", amount),
			zap.String("reason", reason),
			zap.Error(err))
		return err
	}

	l.logger.Info("tokens debited", append(logging.LedgerFields(-amount, balance, reason), logging.UserField(userID))...)
	return nil
}

// Credit adds amount tokens to userID's balance.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64, reason string) error {
	if amount < 0 {
		return ErrNegativeAmount
	}
	if amount == 0 {
		_, err := l.Balance(ctx, userID)
		return err
	}

	balance, err := l.store.CreditTokens(ctx, userID, amount, reason)
	if err != nil {
		err = translate(err)
		l.logger.Error("credit failed",
			logging.UserField(userID),
			zap.Int64("amount", amount),
			zap.String("reason", reason),
			zap.Error(err))
		return err
	}

	l.logger.Info("tokens credited", append(logging.LedgerFields(amount, balance, reason), logging.UserField(userID))...)
	return nil
}

// Adjust applies a signed admin correction and returns the new balance.
// A negative delta that would overdraw the account fails with
// ErrInsufficientBalance.
func (l *Ledger) Adjust(ctx context.Context, userID string, delta int64, reason string) (int64, error) {
	if reason == "" {
		reason = "admin adjustment"
	}

	var err error
	switch {
	case delta > 0:
		err = l.Credit(ctx, userID, delta, reason)
	case delta < 0:
		err = l.Debit(ctx, userID, -delta, reason)
	}
	if err != nil {
		return 0, err
	}
	return l.Balance(ctx, userID)
}

// Balance returns userID's current balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	p, err := l.store.GetProfile(ctx, userID)
	if err != nil {
		return 0, translate(err)
	}
	return p.TokenBalance, nil
}

// Provision returns userID's profile, creating it with the initial balance
// on first sight. created reports whether a profile was inserted.
func (l *Ledger) Provision(ctx context.Context, userID, email string) (db.Profile, bool, error) {
	if userID == "" {
		return db.Profile{}, false, ErrAccountNotFound
	}

	p, created, err := l.store.EnsureProfile(ctx, userID, email, l.initialBalance)
	if err != nil {
		return db.Profile{}, false, fmt.Errorf("ledger: provision %s: %w", userID, err)
	}
	if created {
		l.logger.Info("profile provisioned", logging.UserField(userID), zap.Int64("balance", p.TokenBalance))
	}
	return p, created, nil
}

// History lists userID's balance changes, newest first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]db.LedgerEntry, error) {
	if _, err := l.Balance(ctx, userID); err != nil {
		return nil, err
	}
	entries, err := l.store.ListLedgerEntries(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: history: %w", err)
	}
	return entries, nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, db.ErrInsufficientBalance):
		return ErrInsufficientBalance
	case errors.Is(err, db.ErrNotFound):
		return ErrAccountNotFound
	default:
		return fmt.Errorf("ledger: %w", err)
	}
}
