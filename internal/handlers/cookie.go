package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// The refresh token is only ever read from and written to this cookie.

func (h HandlerSet) refreshCookie(c *gin.Context) string {
	value, err := c.Cookie(h.cfg.Cookie.Name)
	if err != nil {
		return ""
	}
	return value
}

func (h HandlerSet) setRefreshCookie(c *gin.Context, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cfg.Cookie.Name,
		Value:    token,
		Path:     h.cfg.Cookie.Path,
		Domain:   h.cfg.Cookie.Domain,
		MaxAge:   int(h.auth.RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.Cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h HandlerSet) clearRefreshCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cfg.Cookie.Name,
		Value:    "",
		Path:     h.cfg.Cookie.Path,
		Domain:   h.cfg.Cookie.Domain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}
