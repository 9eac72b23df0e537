package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"erms/api/internal/response"
)

type healthResponse struct {
	Environment string            `json:"environment"`
	Checks      map[string]string `json:"checks"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Error().Err(err).Str("check", name).Msg("health check failed")
			checks[name] = "error"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	data := healthResponse{Environment: h.cfg.Environment, Checks: checks}
	if status != http.StatusOK {
		c.JSON(status, response.Envelope{
			Status:  status,
			Success: false,
			Message: "Degraded",
			Data:    data,
			Error:   "unavailable",
		})
		return
	}
	response.OK(c, status, "ok", data)
}
