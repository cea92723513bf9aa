package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// BearerToken guards the ops API with a static token sent as
// "Authorization: Bearer <token>".
func BearerToken(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
			c.Header("WWW-Authenticate", `Bearer realm="ops"`)
			deny(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		c.Next()
	}
}

// WebhookSecret rejects webhook deliveries whose secret header does not match
// the secret registered with setWebhook. An empty secret disables the check.
func WebhookSecret(secret string) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader(SecretTokenHeader)), want) != 1 {
			deny(c, http.StatusUnauthorized, "unauthorized", "bad webhook secret")
			return
		}
		c.Next()
	}
}

func deny(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       code,
		"message":    msg,
	})
}
