// Package oidc adapts any OpenID Connect issuer (Google, Keycloak, ...) to
// the provider.OAuthProvider contract using discovery.
package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/devhaven/auth-service/internal/auth"
	"github.com/devhaven/auth-service/internal/logger"
)

const defaultTimeout = 10 * time.Second

const GoogleIssuer = "https://accounts.google.com"

type Config struct {
	Name         string
	Issuer       string
	ClientID     string
	ClientSecret string // empty for public clients

	// PublicBaseURL replaces the scheme and host of the discovered
	// authorization endpoint. Needed when the issuer is reached through an
	// internal address the browser cannot resolve.
	PublicBaseURL string

	Scopes     []string
	HTTPClient *http.Client
}

type Provider struct {
	name        string
	oauthConfig *oauth2.Config
	oidc        *oidc.Provider
	verifier    *oidc.IDTokenVerifier
	http        *http.Client
}

// New runs discovery against cfg.Issuer.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Name == "" || cfg.Issuer == "" || cfg.ClientID == "" {
		return nil, errors.New("oidc provider config missing required fields")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	ctx = oidc.ClientContext(ctx, httpClient)

	oidcProvider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init %s oidc provider: %w", cfg.Name, err)
	}

	ep := oidcProvider.Endpoint()
	if cfg.ClientSecret == "" {
		ep.AuthStyle = oauth2.AuthStyleInParams
	}
	if cfg.PublicBaseURL != "" {
		ep.AuthURL, err = rebase(ep.AuthURL, cfg.PublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("%s public base url: %w", cfg.Name, err)
		}
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return &Provider{
		name: cfg.Name,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     ep,
			Scopes:       scopes,
		},
		oidc:     oidcProvider,
		verifier: oidcProvider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		http:     httpClient,
	}, nil
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) AuthorizationURL(state, redirectURI string) string {
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOnline}
	if redirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	}
	return p.oauthConfig.AuthCodeURL(state, opts...)
}

// ExchangeCode trades the code for tokens. An id_token in the response is
// verified against the issuer's keys before the token is accepted.
func (p *Provider) ExchangeCode(ctx context.Context, code, redirectURI string) (*auth.Token, error) {
	ctx = oidc.ClientContext(ctx, p.http)

	var opts []oauth2.AuthCodeOption
	if redirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	}

	tok, err := p.oauthConfig.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, classifyExchangeError(err)
	}

	if rawIDToken, ok := tok.Extra("id_token").(string); ok && rawIDToken != "" {
		idToken, err := p.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, &auth.Error{
				Kind:        auth.KindProvider,
				Code:        "invalid_id_token",
				Description: "id_token verification failed",
				Err:         err,
			}
		}
		logger.From(ctx).Debug("oidc id_token verified",
			logger.Provider(p.name),
			logger.Issuer(idToken.Issuer),
		)
	}

	scope, _ := tok.Extra("scope").(string)
	return &auth.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Scope:        scope,
		Expiry:       tok.Expiry,
	}, nil
}

type claims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
	Picture           string `json:"picture"`
}

// FetchUserInfo queries the discovered userinfo endpoint.
func (p *Provider) FetchUserInfo(ctx context.Context, accessToken string) (*auth.Profile, error) {
	ctx = oidc.ClientContext(ctx, p.http)

	info, err := p.oidc.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			return nil, auth.NetworkError(fmt.Errorf("%s: %w", ue.Op, ue.Err))
		}
		return nil, auth.Errorf(auth.KindProvider, "%s userinfo: %w", p.name, err)
	}

	var c claims
	if err := info.Claims(&c); err != nil {
		return nil, auth.Errorf(auth.KindProvider, "%s userinfo claims: %w", p.name, err)
	}
	if c.Subject == "" {
		return nil, auth.ProviderError("invalid_profile", "userinfo has no subject")
	}

	var raw json.RawMessage
	if err := info.Claims(&raw); err != nil {
		return nil, auth.Errorf(auth.KindProvider, "%s userinfo claims: %w", p.name, err)
	}

	username := c.PreferredUsername
	if username == "" {
		username = c.Name
	}

	return &auth.Profile{
		Provider:  p.name,
		ID:        c.Subject,
		Username:  username,
		Email:     c.Email,
		AvatarURL: c.Picture,
		Raw:       raw,
	}, nil
}

func classifyExchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode != "" {
			return auth.ProviderError(re.ErrorCode, re.ErrorDescription)
		}
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return auth.ProviderError(fmt.Sprintf("http_%d", status), "")
	}

	var ue *url.Error
	if errors.As(err, &ue) {
		return auth.NetworkError(fmt.Errorf("%s: %w", ue.Op, ue.Err))
	}
	return auth.Errorf(auth.KindProvider, "token response: %w", err)
}

func rebase(endpoint, base string) (string, error) {
	e, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if b.Scheme == "" || b.Host == "" {
		return "", fmt.Errorf("invalid base url %q", base)
	}
	e.Scheme = b.Scheme
	e.Host = b.Host
	return e.String(), nil
}
