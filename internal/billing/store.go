package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Subscription statuses stored on an account.
const (
	StatusFree   = "free"
	StatusActive = "active"
)

// Account is a user's credit balance and subscription status.
type Account struct {
	UserID             string    `json:"userId"`
	Credits            int64     `json:"credits"`
	SubscriptionStatus string    `json:"subscriptionStatus"`
	UpdatedAt          time.Time `json:"updatedAt,omitzero"`
}

// Credit is one grant of credits caused by a Stripe event. An empty Status
// keeps the account's current status.
type Credit struct {
	EventID string
	UserID  string
	Amount  int
	Status  string
}

// AccountStore persists balances.
type AccountStore interface {
	ApplyCredit(ctx context.Context, c Credit) (bool, error)
	GetAccount(ctx context.Context, userID string) (Account, error)
}

// Store keeps accounts in Postgres.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the accounts and processed-events tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			user_id TEXT PRIMARY KEY,
			credits BIGINT NOT NULL DEFAULT 0,
			subscription_status TEXT NOT NULL DEFAULT 'free',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS billing_events (
			event_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			credits INTEGER NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("%w: ensure schema: %v", ErrDatabase, err)
		}
	}
	return nil
}

// ApplyCredit adds c.Amount to the user's balance exactly once per event.
// It reports false when the event was already applied.
func (s *Store) ApplyCredit(ctx context.Context, c Credit) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: begin: %v", ErrDatabase, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO billing_events (event_id, user_id, credits) VALUES ($1, $2, $3)
		 ON CONFLICT (event_id) DO NOTHING`,
		c.EventID, c.UserID, c.Amount)
	if err != nil {
		return false, fmt.Errorf("%w: record event: %v", ErrDatabase, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, fmt.Errorf("%w: record event: %v", ErrDatabase, err)
	} else if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (user_id, credits, subscription_status, updated_at)
		 VALUES ($1, $2, COALESCE(NULLIF($3, ''), 'free'), now())
		 ON CONFLICT (user_id) DO UPDATE SET
		   credits = accounts.credits + EXCLUDED.credits,
		   subscription_status = COALESCE(NULLIF($3, ''), accounts.subscription_status),
		   updated_at = now()`,
		c.UserID, c.Amount, c.Status)
	if err != nil {
		return false, fmt.Errorf("%w: add credits: %v", ErrDatabase, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: commit: %v", ErrDatabase, err)
	}
	return true, nil
}

// GetAccount returns the user's balance. Unknown users have zero credits
// and the free status.
func (s *Store) GetAccount(ctx context.Context, userID string) (Account, error) {
	acc := Account{UserID: userID, SubscriptionStatus: StatusFree}
	err := s.db.QueryRowContext(ctx,
		`SELECT credits, subscription_status, updated_at FROM accounts WHERE user_id = $1`, userID,
	).Scan(&acc.Credits, &acc.SubscriptionStatus, &acc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return acc, nil
	}
	if err != nil {
		return Account{}, fmt.Errorf("%w: get account: %v", ErrDatabase, err)
	}
	return acc, nil
}
