package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"erms/api/internal/response"
	"erms/api/internal/security"
	"erms/api/internal/service"
)

const identityKey = "identity"

// AccessVerifier authenticates a bearer access token against the credential store.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, accessToken string) (security.Identity, error)
}

// Auth requires a valid access token in the Authorization header and stores
// the resolved identity on the context.
func Auth(verifier AccessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			response.Fail(c, service.ErrMissingToken)
			return
		}

		identity, err := verifier.VerifyAccess(c.Request.Context(), token)
		if err != nil {
			response.Fail(c, err)
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// OptionalAuth sets the identity when a valid access token is presented and
// otherwise lets the request through anonymously.
func OptionalAuth(verifier AccessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c.GetHeader("Authorization")); token != "" {
			if identity, err := verifier.VerifyAccess(c.Request.Context(), token); err == nil {
				c.Set(identityKey, identity)
			}
		}
		c.Next()
	}
}

// CurrentIdentity returns the identity set by Auth.
func CurrentIdentity(c *gin.Context) (security.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return security.Identity{}, false
	}
	identity, ok := v.(security.Identity)
	return identity, ok
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
