package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/devhaven/auth-service/internal/account"
	"github.com/devhaven/auth-service/internal/auth"
	"github.com/devhaven/auth-service/internal/logger"
	"github.com/devhaven/auth-service/internal/session"
)

const defaultCallbackProvider = "github"

// Authenticator is the login flow the handlers expose over HTTP.
type Authenticator interface {
	Login(ctx context.Context, sessionID, providerName, redirectURI string) (authURL, state string, err error)
	EnsureSession(ctx context.Context, sessionID string) (sid string, issued bool, err error)
	Callback(ctx context.Context, sessionID, providerName, code, state string) (*account.User, string, error)
	Logout(ctx context.Context, sessionID string) error
	AvailableProviders() []string
	CurrentUser(ctx context.Context, sessionID string) (*account.User, error)
	SessionLifetime() time.Duration
}

type Handler struct {
	auth   Authenticator
	cookie session.CookieOptions
}

func NewHandler(authenticator Authenticator, cookie session.CookieOptions) *Handler {
	return &Handler{
		auth:   authenticator,
		cookie: cookie,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/api/auth")
	g.POST("/login", h.login)
	g.POST("/callback", h.callback)
	g.POST("/logout", h.logout)
	g.GET("/profile", h.profile)
	g.GET("/providers", h.providers)
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sessionID, err := h.ensureSession(c)
	if err != nil {
		writeError(c, err)
		return
	}

	authURL, state, err := h.auth.Login(c.Request.Context(), sessionID, req.Provider, req.RedirectURI)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, loginResponse{AuthURL: authURL, State: state})
}

func (h *Handler) callback(c *gin.Context) {
	var req callbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	providerName := c.DefaultQuery("provider", defaultCallbackProvider)
	sessionID := session.ReadCookie(c.Request, h.cookie)

	user, newSessionID, err := h.auth.Callback(c.Request.Context(), sessionID, providerName, req.Code, req.State)
	if err != nil {
		writeError(c, err)
		return
	}

	// Authenticated sessions outlive the browser session.
	session.SetCookie(c.Writer, newSessionID, time.Now().Add(h.auth.SessionLifetime()), h.cookie)

	c.JSON(http.StatusOK, authResponse{
		Success: true,
		User:    newUserProfile(user),
		Message: "login succeeded",
	})
}

func (h *Handler) logout(c *gin.Context) {
	sessionID := session.ReadCookie(c.Request, h.cookie)
	if err := h.auth.Logout(c.Request.Context(), sessionID); err != nil {
		writeError(c, err)
		return
	}

	session.ClearCookie(c.Writer, h.cookie)
	c.JSON(http.StatusOK, messageResponse{Success: true, Message: "logged out"})
}

func (h *Handler) profile(c *gin.Context) {
	sessionID := session.ReadCookie(c.Request, h.cookie)

	user, err := h.auth.CurrentUser(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusUnauthorized, messageResponse{Success: false, Message: "not logged in"})
		return
	}

	c.JSON(http.StatusOK, profileResponse{Success: true, User: newUserProfile(user)})
}

func (h *Handler) providers(c *gin.Context) {
	c.JSON(http.StatusOK, providersResponse{Success: true, Providers: h.auth.AvailableProviders()})
}

// ensureSession returns the caller's session id. A cookie that names no
// live session is replaced with a server-issued one.
func (h *Handler) ensureSession(c *gin.Context) (string, error) {
	sid, issued, err := h.auth.EnsureSession(c.Request.Context(), session.ReadCookie(c.Request, h.cookie))
	if err != nil {
		return "", err
	}
	if issued {
		session.SetCookie(c.Writer, sid, time.Time{}, h.cookie)
	}
	return sid, nil
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{
		Success: false,
		Message: "invalid request",
		Errors:  err.Error(),
	})
}

func writeError(c *gin.Context, err error) {
	status := auth.HTTPStatus(err)

	message := "internal error"
	var ae *auth.Error
	if errors.As(err, &ae) {
		message = ae.Message()
	}

	if status >= http.StatusInternalServerError {
		logger.From(c.Request.Context()).Error("request failed", logger.Err(err))
	}
	c.JSON(status, messageResponse{Success: false, Message: message})
}
