package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "portal-test-secret"

func signToken(t *testing.T, claims SessionClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func testRouter() (*gin.Engine, *Middleware) {
	gin.SetMode(gin.TestMode)
	mw := NewMiddleware(testSecret)

	router := gin.New()
	router.GET("/protected", mw.RequireSession(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"tenant_id": TenantID(c),
			"token":     Token(c),
		})
	})

	return router, mw
}

func TestRequireSessionResolvesTenant(t *testing.T) {
	router, _ := testRouter()

	token := signToken(t, SessionClaims{
		TenantID: "tenant-42",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tenant-42")
	assert.Contains(t, w.Body.String(), token)
}

func TestRequireSessionMissingHeader(t *testing.T) {
	router, _ := testRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireSessionBadSignature(t *testing.T) {
	router, _ := testRouter()

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{TenantID: "tenant-42"})
	signed, err := other.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireSessionExpiredToken(t *testing.T) {
	router, _ := testRouter()

	token := signToken(t, SessionClaims{
		TenantID: "tenant-42",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireSessionNoTenantClaim(t *testing.T) {
	router, _ := testRouter()

	token := signToken(t, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
