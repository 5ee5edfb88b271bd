package provider

import (
	"context"

	"github.com/devhaven/auth-service/internal/auth"
)

// OAuthProvider defines the contract every external auth provider
// must implement. Implementations return identity facts only and
// must not perform user creation, linking, or session management.
type OAuthProvider interface {
	// Name returns the stable lowercase provider key (e.g. "github").
	Name() string

	// AuthorizationURL builds the provider's authorize URL. It performs no
	// network call and has no side effects.
	AuthorizationURL(state, redirectURI string) string

	// ExchangeCode trades an authorization code for tokens. Provider
	// rejections are *auth.Error of KindProvider, transport failures of
	// KindNetwork.
	ExchangeCode(ctx context.Context, code, redirectURI string) (*auth.Token, error)

	// FetchUserInfo loads the provider profile for accessToken.
	FetchUserInfo(ctx context.Context, accessToken string) (*auth.Profile, error)
}
