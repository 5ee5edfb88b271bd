package auth

import (
	"encoding/json"
	"time"
)

// Profile is the normalized user info returned by a provider.
// It contains facts only, no decisions.
type Profile struct {
	Provider  string // e.g. "github", "google"
	ID        string // provider-scoped unique user identifier
	Username  string // login / preferred_username, may be empty
	Email     string // may be empty
	AvatarURL string
	Raw       json.RawMessage // provider payload as received
}

// Token is the result of an authorization code exchange.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	Expiry       time.Time // zero when the provider does not expire tokens
}
