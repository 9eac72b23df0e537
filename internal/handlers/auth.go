package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"erms/api/internal/middleware"
	"erms/api/internal/response"
	"erms/api/internal/service"
)

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toUserResponse(u service.UserSummary) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Role:      string(u.Role),
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type accessResponse struct {
	AccessToken          string        `json:"accessToken"`
	AccessTokenExpiresAt time.Time     `json:"accessTokenExpiresAt"`
	User                 *userResponse `json:"user,omitempty"`
}

func badRequest(c *gin.Context) {
	response.Abort(c, http.StatusBadRequest, "Invalid request body", service.KindValidation.String())
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) RegisterAccount(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	user, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.OK(c, http.StatusCreated, "Account created", gin.H{"user": toUserResponse(user)})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Fail(c, err)
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)
	user := toUserResponse(result.User)
	response.OK(c, http.StatusOK, "Login successful", accessResponse{
		AccessToken:          result.AccessToken,
		AccessTokenExpiresAt: result.AccessExpiresAt,
		User:                 &user,
	})
}

// RefreshToken ignores the request body; a token sent anywhere but the
// cookie counts as missing.
func (h HandlerSet) RefreshToken(c *gin.Context) {
	result, err := h.auth.Refresh(c.Request.Context(), h.refreshCookie(c))
	if err != nil {
		h.clearRefreshCookie(c)
		response.Fail(c, err)
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)
	response.OK(c, http.StatusOK, "Token refreshed", accessResponse{
		AccessToken:          result.AccessToken,
		AccessTokenExpiresAt: result.AccessExpiresAt,
	})
}

// Logout always succeeds from the client's point of view.
func (h HandlerSet) Logout(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)

	if err := h.auth.Logout(c.Request.Context(), h.refreshCookie(c), identity.UserID); err != nil {
		h.log.Warn().Err(err).Str("user_id", identity.UserID).Msg("logout could not remove refresh token")
	}

	h.clearRefreshCookie(c)
	response.OK(c, http.StatusOK, "Logged out", nil)
}

type profileResponse struct {
	User           userResponse `json:"user"`
	ActiveSessions int          `json:"activeSessions"`
}

func (h HandlerSet) Profile(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)

	user, err := h.auth.Profile(c.Request.Context(), identity.UserID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	sessions, err := h.auth.ActiveSessions(c.Request.Context(), identity.UserID)
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.OK(c, http.StatusOK, "Profile retrieved", profileResponse{
		User:           toUserResponse(user),
		ActiveSessions: sessions,
	})
}

type updateProfileRequest struct {
	Email    *string `json:"email"`
	Username *string `json:"username"`
}

func (h HandlerSet) UpdateProfile(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	user, err := h.auth.UpdateProfile(c.Request.Context(), identity.UserID, service.ProfileInput{
		Email:    req.Email,
		Username: req.Username,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.OK(c, http.StatusOK, "Profile updated", gin.H{"user": toUserResponse(user)})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

func (h HandlerSet) ChangePassword(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	if err := h.auth.ChangePassword(c.Request.Context(), identity.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		response.Fail(c, err)
		return
	}

	h.clearRefreshCookie(c)
	response.OK(c, http.StatusOK, "Password changed. Please log in again", nil)
}

func (h HandlerSet) RevokeOwnSessions(c *gin.Context) {
	identity, _ := middleware.CurrentIdentity(c)

	if err := h.auth.RevokeAllSessions(c.Request.Context(), identity.UserID, "revoked by user"); err != nil {
		response.Fail(c, err)
		return
	}

	h.clearRefreshCookie(c)
	response.OK(c, http.StatusOK, "All sessions revoked", nil)
}
