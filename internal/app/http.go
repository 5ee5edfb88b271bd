package app

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/devhaven/auth-service/internal/account/postgres"
	"github.com/devhaven/auth-service/internal/auth/handler"
	"github.com/devhaven/auth-service/internal/auth/linker"
	"github.com/devhaven/auth-service/internal/auth/manager"
	"github.com/devhaven/auth-service/internal/auth/state"
	"github.com/devhaven/auth-service/internal/config"
	"github.com/devhaven/auth-service/internal/metrics"
	"github.com/devhaven/auth-service/internal/middleware"
	"github.com/devhaven/auth-service/internal/session"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {
	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	registry, redirects, err := setupProviders(ctx, cfg)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	m := metrics.New()
	accounts := postgres.New(infra.DB)

	authManager := manager.New(
		registry,
		state.New(infra.Sessions, cfg.OAuthStateTTL),
		infra.Sessions,
		linker.New(accounts),
		accounts,
		manager.Options{
			DefaultRedirectURI: cfg.OAuthDefaultRedirectURI,
			RedirectURIs:       redirects,
			SessionLifetime:    cfg.SessionLifetime,
			Metrics:            m,
		},
	)

	cookie := session.CookieOptions{
		Name:   cfg.SessionCookieName,
		Secure: cfg.SessionCookieSecure,
	}

	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	return newRouter(authManager, cookie, m), infra.Close, nil
}

type authService interface {
	handler.Authenticator
	middleware.CurrentUserResolver
}

func newRouter(authManager authService, cookie session.CookieOptions, m *metrics.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(m))

	// ----------------------------
	// Public Routes
	// ----------------------------

	handler.NewHandler(authManager, cookie).RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	// ----------------------------
	// Protected API Routes
	// ----------------------------

	api := router.Group("/api")
	api.Use(middleware.GinRequireAuth(middleware.NewAuthMiddleware(authManager, cookie)))

	api.GET("/me", func(c *gin.Context) {
		user, _ := middleware.GinUser(c)
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"user_id": user.ID,
		})
	})

	return router
}
