package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ContextTenantID is the gin context key holding the caller's tenant.
	ContextTenantID = "tenant_id"
	// ContextUserID is the gin context key holding the caller's subject.
	ContextUserID = "user_id"
	// ContextToken is the gin context key holding the raw bearer token, kept
	// for forwarding to the upstream onboarding API.
	ContextToken = "bearer_token"
)

// SessionClaims are the claims the platform's IAM issues for portal sessions.
type SessionClaims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Middleware validates the session bearer token and resolves the tenant.
type Middleware struct {
	secret []byte
}

// NewMiddleware creates the session middleware with the IAM signing secret.
func NewMiddleware(secret string) *Middleware {
	return &Middleware{secret: []byte(secret)}
}

// RequireSession rejects requests without a valid bearer token and stores the
// tenant ID, user ID and raw token on the request context.
func (m *Middleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		claims, err := m.parseClaims(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			return
		}

		if claims.TenantID == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "session has no tenant"})
			return
		}

		c.Set(ContextTenantID, claims.TenantID)
		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextToken, token)

		c.Next()
	}
}

func (m *Middleware) parseClaims(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	return claims, nil
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("authorization header is not a bearer token")
	}
	return strings.TrimSpace(parts[1]), nil
}

// TenantID returns the tenant resolved by RequireSession.
func TenantID(c *gin.Context) string {
	return c.GetString(ContextTenantID)
}

// Token returns the raw bearer token resolved by RequireSession.
func Token(c *gin.Context) string {
	return c.GetString(ContextToken)
}
