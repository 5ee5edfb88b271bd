package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://localhost/test")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("SESSION_LIFETIME", "")
	t.Setenv("SESSION_STORE", "")
	t.Setenv("APP_PORT", "")
	t.Setenv("GITHUB_SCOPE", "")
	t.Setenv("OAUTH_STATE_TTL", "")
	t.Setenv("OAUTH_HTTP_TIMEOUT", "")
	t.Setenv("GITHUB_CLIENT_ID", "")
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("KEYCLOAK_CLIENT_ID", "")

	cfg := Load("")

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, "redis", cfg.SessionStore)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionLifetime)
	assert.Equal(t, 10*time.Minute, cfg.OAuthStateTTL)
	assert.Equal(t, 10*time.Second, cfg.OAuthHTTPTimeout)
	assert.Equal(t, "user:email", cfg.GithubScope)
	require.NoError(t, cfg.Validate())
}

func TestLoadBuildsDSNFromParts(t *testing.T) {
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DB_DATABASE", "devhaven")
	t.Setenv("DB_USERNAME", "app")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_EXTRAS", "")

	cfg := Load("")

	assert.Equal(t, "postgres://app:secret@db:5433/devhaven?sslmode=disable", cfg.DatabaseDSN)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("GITHUB_CLIENT_ID=from-file\nAPP_PORT=9000\n"), 0o600))

	t.Setenv("APP_PORT", "7000")
	os.Unsetenv("GITHUB_CLIENT_ID")
	t.Cleanup(func() { os.Unsetenv("GITHUB_CLIENT_ID") })

	cfg := Load(path)

	assert.Equal(t, "from-file", cfg.GithubClientID)
	assert.Equal(t, "7000", cfg.AppPort, "environment wins over the env file")
}

func TestValidate(t *testing.T) {
	cfg := Config{
		DatabaseDSN:     "postgres://x",
		SessionStore:    "memory",
		OAuthStateTTL:   time.Minute,
		SessionLifetime: time.Hour,
	}
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.SessionStore = "file"
	bad.GithubClientID = "id"
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_STORE")
	assert.Contains(t, err.Error(), "GITHUB_CLIENT_SECRET")

	noDB := cfg
	noDB.DatabaseDSN = ""
	assert.Error(t, noDB.Validate())
}

func TestValidateReportsMalformedValues(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://localhost/test")
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("OAUTH_HTTP_TIMEOUT", "10")
	t.Setenv("REDIS_DB", "one")
	t.Setenv("SESSION_COOKIE_SECURE", "yes please")
	t.Setenv("OAUTH_STATE_TTL", "")
	t.Setenv("SESSION_LIFETIME", "")

	cfg := Load("")
	assert.Equal(t, 10*time.Second, cfg.OAuthHTTPTimeout)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `OAUTH_HTTP_TIMEOUT="10"`)
	assert.Contains(t, err.Error(), `REDIS_DB="one"`)
	assert.Contains(t, err.Error(), `SESSION_COOKIE_SECURE="yes please"`)
}

func TestLoadMissingEnvFileIsFine(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://localhost/test")
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("OAUTH_STATE_TTL", "")
	t.Setenv("SESSION_LIFETIME", "")
	t.Setenv("OAUTH_HTTP_TIMEOUT", "")
	t.Setenv("REDIS_DB", "")
	t.Setenv("SESSION_COOKIE_SECURE", "")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, cfg.Validate())
}

func TestLoadReportsUnreadableEnvFile(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://localhost/test")
	t.Setenv("SESSION_STORE", "memory")

	// A directory exists but cannot be parsed as an env file.
	dir := t.TempDir()

	err := Load(dir).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "env file")
}
