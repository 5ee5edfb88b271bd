package handler

import "github.com/devhaven/auth-service/internal/account"

type loginRequest struct {
	Provider    string `json:"provider" binding:"required"`
	RedirectURI string `json:"redirect_uri"`
}

type loginResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

type callbackRequest struct {
	Code  string `json:"code" binding:"required"`
	State string `json:"state" binding:"required"`
}

// UserProfile is the public view of a user. CreatedAt is Unix seconds.
type UserProfile struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	IsActive  bool   `json:"is_active"`
	CreatedAt int64  `json:"created_at"`
}

func newUserProfile(u *account.User) *UserProfile {
	return &UserProfile{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt.Unix(),
	}
}

type authResponse struct {
	Success bool         `json:"success"`
	User    *UserProfile `json:"user"`
	Message string       `json:"message"`
}

type profileResponse struct {
	Success bool         `json:"success"`
	User    *UserProfile `json:"user"`
}

type providersResponse struct {
	Success   bool     `json:"success"`
	Providers []string `json:"providers"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Errors  string `json:"errors,omitempty"`
}
