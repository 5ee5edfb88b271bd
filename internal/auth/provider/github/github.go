// Package github implements the GitHub OAuth2 provider.
// GitHub has no ID token, so the profile comes from the REST API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"github.com/devhaven/auth-service/internal/auth"
	"github.com/devhaven/auth-service/internal/logger"
)

const (
	providerName   = "github"
	defaultAPIURL  = "https://api.github.com"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
	userAgent      = "devhaven-auth"
)

// Options overrides endpoints and transport. Zero values use GitHub's.
type Options struct {
	Scopes     []string
	AuthURL    string
	TokenURL   string
	APIURL     string
	HTTPClient *http.Client
}

type Provider struct {
	oauthConfig *oauth2.Config
	apiURL      string
	http        *http.Client
}

func New(clientID, clientSecret string, opts Options) (*Provider, error) {
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("github oauth config missing required fields")
	}

	endpoint := githuboauth.Endpoint
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	if opts.AuthURL != "" {
		endpoint.AuthURL = opts.AuthURL
	}
	if opts.TokenURL != "" {
		endpoint.TokenURL = opts.TokenURL
	}

	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = []string{"user:email"}
	}

	apiURL := strings.TrimRight(opts.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Provider{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		apiURL: apiURL,
		http:   httpClient,
	}, nil
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) AuthorizationURL(state, redirectURI string) string {
	var opts []oauth2.AuthCodeOption
	if redirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	}
	return p.oauthConfig.AuthCodeURL(state, opts...)
}

func (p *Provider) ExchangeCode(ctx context.Context, code, redirectURI string) (*auth.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.http)

	var opts []oauth2.AuthCodeOption
	if redirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	}

	tok, err := p.oauthConfig.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, classifyExchangeError(err)
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

type user struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type email struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// FetchUserInfo loads /user and, when the public email is empty, falls back
// to the primary entry of /user/emails. A failing fallback leaves the email
// empty.
func (p *Provider) FetchUserInfo(ctx context.Context, accessToken string) (*auth.Profile, error) {
	raw, err := p.get(ctx, "/user", accessToken)
	if err != nil {
		return nil, err
	}

	var u user
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, auth.Errorf(auth.KindProvider, "decode github user: %w", err)
	}
	if u.ID == 0 {
		return nil, auth.ProviderError("invalid_profile", "github user has no id")
	}

	profile := &auth.Profile{
		Provider:  providerName,
		ID:        fmt.Sprintf("%d", u.ID),
		Username:  u.Login,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		Raw:       raw,
	}

	if profile.Email == "" {
		primary, err := p.primaryEmail(ctx, accessToken)
		if err != nil {
			logger.From(ctx).Warn("github primary email lookup failed",
				logger.Provider(providerName),
				logger.Err(err),
			)
		}
		profile.Email = primary
	}

	return profile, nil
}

func (p *Provider) primaryEmail(ctx context.Context, accessToken string) (string, error) {
	raw, err := p.get(ctx, "/user/emails", accessToken)
	if err != nil {
		return "", err
	}

	var emails []email
	if err := json.Unmarshal(raw, &emails); err != nil {
		return "", fmt.Errorf("decode github emails: %w", err)
	}
	for _, e := range emails {
		if e.Primary {
			return e.Email, nil
		}
	}
	return "", nil
}

func (p *Provider) get(ctx context.Context, path, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+path, nil)
	if err != nil {
		return nil, auth.NetworkError(err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, auth.NetworkError(stripURL(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, auth.NetworkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return nil, auth.ProviderError(fmt.Sprintf("http_%d", resp.StatusCode), apiErr.Message)
	}
	return body, nil
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
		return auth.NetworkError(stripURL(err))
	}
	return auth.Errorf(auth.KindProvider, "token response: %w", err)
}

// stripURL drops the request URL from transport errors; query strings may
// carry codes.
func stripURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}
