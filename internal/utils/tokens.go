package utils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// TokenInfo is what an API key grants: a per-interval request budget and the
// account it acts for.
type TokenInfo struct {
	RateLimit int
	UserID    string
	Email     string
}

var tokens struct {
	sync.RWMutex
	cache map[string]TokenInfo
}

var pg struct {
	sync.Mutex
	dsn string
	db  *sql.DB
}

var (
	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrTokenStoreNotReady signals that the token store has not been loaded
	// yet, typically while Postgres is still starting.
	ErrTokenStoreNotReady = errors.New("token store not ready")
)

func postgresDSN(cfg PostgresConfig) (string, error) {
	if strings.HasPrefix(cfg.Host, "postgres://") || strings.HasPrefix(cfg.Host, "postgresql://") {
		return cfg.Host, nil
	}
	switch {
	case cfg.Host == "":
		return "", fmt.Errorf("postgres host is empty")
	case cfg.Database == "":
		return "", fmt.Errorf("postgres database is empty")
	case cfg.User == "":
		return "", fmt.Errorf("postgres user is empty")
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	host := cfg.Host
	switch {
	case strings.HasPrefix(host, "["):
		if !strings.Contains(host, "]:") {
			host = fmt.Sprintf("%s:%d", host, port)
		}
	case strings.Count(host, ":") >= 2:
		host = fmt.Sprintf("[%s]:%d", host, port)
	case !strings.Contains(host, ":"):
		host = fmt.Sprintf("%s:%d", host, port)
	}

	u := &url.URL{Scheme: "postgres", Host: host, Path: "/" + cfg.Database}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}
	if cfg.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", cfg.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Postgres returns the shared control-plane connection, opening it on first
// use and reopening it when the DSN changes.
func Postgres(cfg PostgresConfig) (*sql.DB, error) {
	dsn, err := postgresDSN(cfg)
	if err != nil {
		return nil, err
	}

	pg.Lock()
	defer pg.Unlock()

	if pg.db != nil && pg.dsn == dsn {
		return pg.db, nil
	}
	if pg.db != nil {
		_ = pg.db.Close()
		pg.db, pg.dsn = nil, ""
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tokens and account credits only: a small pool is plenty.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	pg.db, pg.dsn = db, dsn
	return pg.db, nil
}

func ensureTokensSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tokens (
			token TEXT PRIMARY KEY,
			rate_limit INTEGER NOT NULL DEFAULT 60,
			user_id TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			comment TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_user_id ON tokens (user_id);`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// LoadTokensFromPostgres replaces the in-memory token cache with the rows of
// the tokens table.
func LoadTokensFromPostgres(cfg PostgresConfig) error {
	db, err := Postgres(cfg)
	if err != nil {
		return err
	}
	return LoadTokensFromDB(db)
}

// LoadTokensFromDB is LoadTokensFromPostgres for an already open handle.
func LoadTokensFromDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ensureTokensSchema(ctx, db); err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx, `SELECT token, rate_limit, user_id, email FROM tokens`)
	if err != nil {
		return err
	}
	defer rows.Close()

	cache := make(map[string]TokenInfo)
	for rows.Next() {
		var token string
		var info TokenInfo
		if err := rows.Scan(&token, &info.RateLimit, &info.UserID, &info.Email); err != nil {
			return err
		}
		cache[token] = info
	}
	if err := rows.Err(); err != nil {
		return err
	}

	tokens.Lock()
	tokens.cache = cache
	tokens.Unlock()
	return nil
}

// LoadTokens replaces the token cache with a copy of m. Used by tests and
// local runs without Postgres.
func LoadTokens(m map[string]TokenInfo) {
	cache := make(map[string]TokenInfo, len(m))
	for k, v := range m {
		cache[k] = v
	}
	tokens.Lock()
	tokens.cache = cache
	tokens.Unlock()
}

// TokensReady reports whether the token cache has been loaded at least once.
func TokensReady() bool {
	tokens.RLock()
	defer tokens.RUnlock()
	return tokens.cache != nil
}

// ValidateToken reports whether token is known.
func ValidateToken(token string) bool {
	tokens.RLock()
	defer tokens.RUnlock()
	_, ok := tokens.cache[token]
	return ok
}

// GetRateLimit returns the token's request budget, 0 (unlimited) if unknown.
func GetRateLimit(token string) int {
	tokens.RLock()
	defer tokens.RUnlock()
	return tokens.cache[token].RateLimit
}

// LookupToken returns the grant behind token.
func LookupToken(token string) (TokenInfo, bool) {
	tokens.RLock()
	defer tokens.RUnlock()
	info, ok := tokens.cache[token]
	return info, ok
}

// RefreshTokensPeriodically reloads tokens every interval until stop is closed.
func RefreshTokensPeriodically(cfg PostgresConfig, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := LoadTokensFromPostgres(cfg); err != nil {
				Error("Failed to reload API tokens", "error", err)
			}
		case <-stop:
			return
		}
	}
}
