package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"erms/api/internal/config"
	"erms/api/internal/middleware"
	"erms/api/internal/models"
	"erms/api/internal/service"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type HandlerSet struct {
	log    zerolog.Logger
	cfg    *config.AppConfig
	auth   *service.AuthService
	checks map[string]HealthCheck
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, auth *service.AuthService, checks map[string]HealthCheck) HandlerSet {
	return HandlerSet{
		log:    log,
		cfg:    cfg,
		auth:   auth,
		checks: checks,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", h.RegisterAccount)
	auth.POST("/login", h.Login)
	auth.POST("/refresh-token", h.RefreshToken)
	auth.POST("/logout", middleware.OptionalAuth(h.auth), h.Logout)

	protected := v1.Group("/auth")
	protected.Use(middleware.Auth(h.auth))
	protected.GET("/profile", h.Profile)
	protected.PATCH("/profile", h.UpdateProfile)
	protected.POST("/change-password", h.ChangePassword)
	protected.POST("/sessions/revoke", h.RevokeOwnSessions)

	users := v1.Group("/users")
	users.Use(
		middleware.Auth(h.auth),
		middleware.RequireRoles(models.UserRoleAdmin, models.UserRoleHR),
	)
	users.PATCH("/:id/status", h.SetUserStatus)
	users.POST("/:id/revoke-sessions", h.RevokeUserSessions)
}
