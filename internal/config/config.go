package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel string

	DatabaseDSN         string
	DBMaxOpenConns      int
	DBMaxIdleConns      int
	DBConnMaxLifetime   time.Duration
	SessionStore        string // "redis" or "memory"
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	SessionCookieName   string
	SessionCookieSecure bool
	SessionLifetime     time.Duration

	OAuthStateTTL           time.Duration
	OAuthHTTPTimeout        time.Duration
	OAuthDefaultRedirectURI string

	GithubClientID     string
	GithubClientSecret string
	GithubRedirectURI  string
	GithubScope        string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	KeycloakIssuer        string
	KeycloakClientID      string
	KeycloakClientSecret  string
	KeycloakRedirectURL   string
	KeycloakPublicBaseURL string

	// problems collects unreadable env files and malformed values seen by
	// Load. Validate reports them.
	problems []error
}

// Load reads envFile (when it exists) and then the process environment.
// Variables already present in the environment win over the file.
func Load(envFile string) Config {
	var l loader
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			l.problems = append(l.problems, fmt.Errorf("env file %s: %w", envFile, err))
		}
	}

	cfg := Config{
		AppPort:  getenv("APP_PORT", "8080"),
		AppEnv:   getenv("APP_ENV", "dev"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		DatabaseDSN:       os.Getenv("DATABASE_DSN"),
		DBMaxOpenConns:    l.getInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    l.getInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: l.getDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),

		SessionStore:        strings.ToLower(getenv("SESSION_STORE", "redis")),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             l.getInt("REDIS_DB", 0),
		SessionCookieName:   getenv("SESSION_COOKIE_NAME", "session"),
		SessionCookieSecure: l.getBool("SESSION_COOKIE_SECURE", true),
		SessionLifetime:     l.getDuration("SESSION_LIFETIME", 7*24*time.Hour),

		OAuthStateTTL:           l.getDuration("OAUTH_STATE_TTL", 10*time.Minute),
		OAuthHTTPTimeout:        l.getDuration("OAUTH_HTTP_TIMEOUT", 10*time.Second),
		OAuthDefaultRedirectURI: os.Getenv("OAUTH_DEFAULT_REDIRECT_URI"),

		GithubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GithubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		GithubRedirectURI:  os.Getenv("GITHUB_REDIRECT_URI"),
		GithubScope:        getenv("GITHUB_SCOPE", "user:email"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),

		KeycloakIssuer:        os.Getenv("KEYCLOAK_ISSUER"),
		KeycloakClientID:      os.Getenv("KEYCLOAK_CLIENT_ID"),
		KeycloakClientSecret:  os.Getenv("KEYCLOAK_CLIENT_SECRET"),
		KeycloakRedirectURL:   os.Getenv("KEYCLOAK_REDIRECT_URL"),
		KeycloakPublicBaseURL: os.Getenv("KEYCLOAK_PUBLIC_BASE_URL"),
	}

	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = dsnFromParts()
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = getenv("REDIS_HOST", "localhost") + ":" + getenv("REDIS_PORT", "6379")
	}

	cfg.problems = l.problems
	return cfg
}

// Validate reports configuration that would make the service unusable.
func (c Config) Validate() error {
	errs := append([]error(nil), c.problems...)

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN is required"))
	}
	switch c.SessionStore {
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis session store"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE must be redis or memory, got %q", c.SessionStore))
	}
	if c.GithubClientID != "" && c.GithubClientSecret == "" {
		errs = append(errs, errors.New("GITHUB_CLIENT_SECRET is required when GITHUB_CLIENT_ID is set"))
	}
	if c.GoogleClientID != "" && c.GoogleClientSecret == "" {
		errs = append(errs, errors.New("GOOGLE_CLIENT_SECRET is required when GOOGLE_CLIENT_ID is set"))
	}
	if c.KeycloakClientID != "" && c.KeycloakIssuer == "" {
		errs = append(errs, errors.New("KEYCLOAK_ISSUER is required when KEYCLOAK_CLIENT_ID is set"))
	}
	if c.OAuthStateTTL <= 0 || c.SessionLifetime <= 0 {
		errs = append(errs, errors.New("OAUTH_STATE_TTL and SESSION_LIFETIME must be positive"))
	}

	return errors.Join(errs...)
}

func dsnFromParts() string {
	host := os.Getenv("DB_HOST")
	if host == "" {
		return ""
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getenv("DB_USERNAME", "postgres"), getenv("DB_PASSWORD", "postgres")),
		Host:     host + ":" + getenv("DB_PORT", "5432"),
		Path:     "/" + getenv("DB_DATABASE", "devhaven"),
		RawQuery: strings.TrimPrefix(os.Getenv("DB_EXTRAS"), "?"),
	}
	if u.RawQuery == "" {
		u.RawQuery = "sslmode=disable"
	}
	return u.String()
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// loader parses typed variables and remembers the ones it could not parse.
// An unset or blank variable takes the default.
type loader struct {
	problems []error
}

func (l *loader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (l *loader) invalid(key, raw string, err error) {
	l.problems = append(l.problems, fmt.Errorf("%s=%q: %w", key, raw, err))
}

func (l *loader) getInt(key string, def int) int {
	raw, ok := l.lookup(key)
	if !ok {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		l.invalid(key, raw, errors.New("not an integer"))
		return def
	}
	return v
}

func (l *loader) getBool(key string, def bool) bool {
	raw, ok := l.lookup(key)
	if !ok {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		l.invalid(key, raw, errors.New("not a boolean"))
		return def
	}
	return v
}

func (l *loader) getDuration(key string, def time.Duration) time.Duration {
	raw, ok := l.lookup(key)
	if !ok {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		l.invalid(key, raw, errors.New("not a duration, use a unit such as 10s or 5m"))
		return def
	}
	return v
}
