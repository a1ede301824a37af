package utils

import (
	"net/url"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetTokensCache() {
	tokens.Lock()
	tokens.cache = nil
	tokens.Unlock()
}

func TestLoadTokensAndValidation(t *testing.T) {
	defer resetTokensCache()

	assert.False(t, TokensReady())
	LoadTokens(map[string]TokenInfo{
		"a": {RateLimit: 5, UserID: "user-a"},
		"b": {RateLimit: 10, UserID: "user-b", Email: "b@example.com"},
	})

	assert.True(t, TokensReady())
	assert.True(t, ValidateToken("a"))
	assert.Equal(t, 5, GetRateLimit("a"))
	assert.Equal(t, 10, GetRateLimit("b"))
	assert.False(t, ValidateToken("c"))
	assert.Equal(t, 0, GetRateLimit("c"))

	info, ok := LookupToken("b")
	assert.True(t, ok)
	assert.Equal(t, "user-b", info.UserID)
	assert.Equal(t, "b@example.com", info.Email)
}

func TestLoadTokensReplacesCache(t *testing.T) {
	defer resetTokensCache()

	LoadTokens(map[string]TokenInfo{"a": {RateLimit: 5}, "b": {RateLimit: 10}})
	LoadTokens(map[string]TokenInfo{"a": {RateLimit: 7}, "c": {RateLimit: 12}})

	assert.Equal(t, 7, GetRateLimit("a"))
	assert.False(t, ValidateToken("b"))
	assert.Equal(t, 12, GetRateLimit("c"))
}

func TestLoadTokensFromDB(t *testing.T) {
	defer resetTokensCache()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tokens").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_tokens_user_id").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT token, rate_limit, user_id, email FROM tokens").
		WillReturnRows(sqlmock.NewRows([]string{"token", "rate_limit", "user_id", "email"}).
			AddRow("key-1", 30, "user-1", "one@example.com").
			AddRow("key-2", 0, "user-2", ""))

	require.NoError(t, LoadTokensFromDB(db))
	require.NoError(t, mock.ExpectationsWereMet())

	info, ok := LookupToken("key-1")
	assert.True(t, ok)
	assert.Equal(t, TokenInfo{RateLimit: 30, UserID: "user-1", Email: "one@example.com"}, info)
	assert.True(t, ValidateToken("key-2"))
}

func TestPostgresDSN_BuildsURL(t *testing.T) {
	dsn, err := postgresDSN(PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "mockup",
		User:     "user",
		Password: "p@ss word",
		SSLMode:  "disable",
	})
	assert.NoError(t, err)

	u, err := url.Parse(dsn)
	assert.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "localhost:5432", u.Host)
	assert.Equal(t, "/mockup", u.Path)
	assert.Equal(t, "user", u.User.Username())
	pw, ok := u.User.Password()
	assert.True(t, ok)
	assert.Equal(t, "p@ss word", pw)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
}

func TestPostgresDSN_IPv6AndDefaults(t *testing.T) {
	dsn, err := postgresDSN(PostgresConfig{Host: "::1", Database: "db", User: "u"})
	assert.NoError(t, err)
	u, err := url.Parse(dsn)
	assert.NoError(t, err)
	assert.Equal(t, "[::1]:5432", u.Host)
	assert.Empty(t, u.RawQuery)
}

func TestPostgresDSN_Passthrough(t *testing.T) {
	raw := "postgres://u:p@localhost:5432/db?sslmode=disable"
	dsn, err := postgresDSN(PostgresConfig{Host: raw})
	assert.NoError(t, err)
	assert.Equal(t, raw, dsn)
}

func TestPostgresDSN_MissingFields(t *testing.T) {
	for _, cfg := range []PostgresConfig{
		{},
		{Host: "db"},
		{Host: "db", Database: "x"},
	} {
		_, err := postgresDSN(cfg)
		assert.Error(t, err)
	}
}
