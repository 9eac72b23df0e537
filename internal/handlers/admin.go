package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"erms/api/internal/middleware"
	"erms/api/internal/response"
	"erms/api/internal/service"
)

type setStatusRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

// SetUserStatus activates or deactivates an account. Deactivation ends every
// session of the target user immediately.
func (h HandlerSet) SetUserStatus(c *gin.Context) {
	caller, _ := middleware.CurrentIdentity(c)
	targetID := c.Param("id")

	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	if targetID == caller.UserID && !*req.IsActive {
		response.Abort(c, http.StatusBadRequest, "You cannot deactivate your own account", service.KindValidation.String())
		return
	}

	if err := h.auth.SetActive(c.Request.Context(), targetID, *req.IsActive); err != nil {
		response.Fail(c, err)
		return
	}

	h.log.Info().
		Str("actor_id", caller.UserID).
		Str("user_id", targetID).
		Bool("active", *req.IsActive).
		Msg("account status changed")

	user, err := h.auth.Profile(c.Request.Context(), targetID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Account status updated", gin.H{"user": toUserResponse(user)})
}

func (h HandlerSet) RevokeUserSessions(c *gin.Context) {
	caller, _ := middleware.CurrentIdentity(c)
	targetID := c.Param("id")

	if err := h.auth.RevokeAllSessions(c.Request.Context(), targetID, "revoked by "+caller.Role+" "+caller.UserID); err != nil {
		response.Fail(c, err)
		return
	}

	response.OK(c, http.StatusOK, "Sessions revoked", nil)
}
