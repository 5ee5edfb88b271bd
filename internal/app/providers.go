package app

import (
	"context"
	"net/http"
	"strings"

	"github.com/devhaven/auth-service/internal/auth/provider"
	"github.com/devhaven/auth-service/internal/auth/provider/github"
	"github.com/devhaven/auth-service/internal/auth/provider/oidc"
	"github.com/devhaven/auth-service/internal/config"
	"github.com/devhaven/auth-service/internal/logger"
)

// setupProviders registers every provider whose client id is configured,
// in a fixed order, and returns the configured callback URL per provider.
func setupProviders(ctx context.Context, cfg config.Config) (*provider.Registry, map[string]string, error) {
	httpClient := &http.Client{Timeout: cfg.OAuthHTTPTimeout}

	var list []provider.OAuthProvider
	redirects := make(map[string]string)

	if cfg.GithubClientID != "" {
		gh, err := github.New(cfg.GithubClientID, cfg.GithubClientSecret, github.Options{
			Scopes:     strings.Fields(strings.ReplaceAll(cfg.GithubScope, ",", " ")),
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, nil, err
		}
		list = append(list, gh)
		redirects[gh.Name()] = cfg.GithubRedirectURI
	}

	if cfg.GoogleClientID != "" {
		google, err := oidc.New(ctx, oidc.Config{
			Name:         "google",
			Issuer:       oidc.GoogleIssuer,
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			HTTPClient:   httpClient,
		})
		if err != nil {
			return nil, nil, err
		}
		list = append(list, google)
		redirects[google.Name()] = cfg.GoogleRedirectURL
	}

	if cfg.KeycloakClientID != "" {
		keycloak, err := oidc.New(ctx, oidc.Config{
			Name:          "keycloak",
			Issuer:        cfg.KeycloakIssuer,
			ClientID:      cfg.KeycloakClientID,
			ClientSecret:  cfg.KeycloakClientSecret,
			PublicBaseURL: cfg.KeycloakPublicBaseURL,
			HTTPClient:    httpClient,
		})
		if err != nil {
			return nil, nil, err
		}
		list = append(list, keycloak)
		redirects[keycloak.Name()] = cfg.KeycloakRedirectURL
	}

	registry, err := provider.NewRegistry(list...)
	if err != nil {
		return nil, nil, err
	}
	if len(list) == 0 {
		logger.Warn("no oauth providers configured")
	}
	return registry, redirects, nil
}
