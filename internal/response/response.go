// Package response writes the JSON envelope every endpoint answers with.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"erms/api/internal/service"
)

type Envelope struct {
	Status  int    `json:"status"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func OK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Envelope{
		Status:  status,
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Abort stops the chain with a failure envelope. code is a machine-readable
// error kind.
func Abort(c *gin.Context, status int, message, code string) {
	c.AbortWithStatusJSON(status, Envelope{
		Status:  status,
		Success: false,
		Message: message,
		Error:   code,
	})
}

// Fail maps a service error onto its status and aborts. The internal cause is
// attached to the gin context for the access log, never to the body.
func Fail(c *gin.Context, err error) {
	kind := service.KindOf(err)
	_ = c.Error(err)
	Abort(c, StatusFor(kind), service.PublicMessage(err), kind.String())
}

func StatusFor(kind service.Kind) int {
	switch kind {
	case service.KindInvalidCredentials,
		service.KindAccountDisabled,
		service.KindMissingToken,
		service.KindInvalidToken,
		service.KindTokenReuseDetected:
		return http.StatusUnauthorized
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
