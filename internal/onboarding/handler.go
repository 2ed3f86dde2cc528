package onboarding

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/TheNyokabi/MoranIP-sub003/internal/auth"
)

// WSHandlerFunc upgrades a wizard request to a tenant-scoped push stream. It
// is injected so the handler does not depend on the push transport.
type WSHandlerFunc func(w http.ResponseWriter, r *http.Request, tenantID string) error

// Handler exposes the onboarding wizard surface to the browser frontend.
type Handler struct {
	sessions *SessionManager
	logger   *zap.Logger
	wsHandle WSHandlerFunc
}

// NewHandler creates a new onboarding handler
func NewHandler(sessions *SessionManager, logger *zap.Logger, wsHandle WSHandlerFunc) *Handler {
	return &Handler{
		sessions: sessions,
		logger:   logger,
		wsHandle: wsHandle,
	}
}

// RegisterRoutes registers onboarding wizard routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	wizard := router.Group("/onboarding")
	{
		wizard.GET("/state", h.getState)
		wizard.POST("/refresh", h.refresh)
		wizard.POST("/select", h.selectWorkspace)
		wizard.POST("/dismiss-error", h.dismissError)

		wizard.POST("/start", h.action(func(c *gin.Context, s *Session) error {
			return s.Start(c.Request.Context())
		}))
		wizard.POST("/begin", h.action(func(c *gin.Context, s *Session) error {
			return s.Begin(c.Request.Context())
		}))
		wizard.POST("/next-step", h.action(func(c *gin.Context, s *Session) error {
			return s.NextStep(c.Request.Context())
		}))
		wizard.POST("/pause", h.action(func(c *gin.Context, s *Session) error {
			return s.Pause(c.Request.Context())
		}))
		wizard.POST("/resume", h.action(func(c *gin.Context, s *Session) error {
			return s.Resume(c.Request.Context())
		}))
		wizard.POST("/steps/:code/skip", h.action(func(c *gin.Context, s *Session) error {
			return s.SkipStep(c.Request.Context(), c.Param("code"))
		}))

		if h.wsHandle != nil {
			wizard.GET("/ws", h.progressStream)
		}
	}
}

func (h *Handler) session(c *gin.Context) *Session {
	return h.sessions.Get(auth.TenantID(c), auth.Token(c))
}

// getState handles GET /api/v1/onboarding/state
func (h *Handler) getState(c *gin.Context) {
	session := h.session(c)

	// Load once on first contact so a fresh gateway does not render a stale
	// NOT_STARTED placeholder; later calls reuse the cached snapshot.
	if c.Query("refresh") == "true" || session.CurrentStatus() == StatusNotStarted {
		// A failed refresh is not fatal: the snapshot keeps its last value
		// and the error travels inside the state payload.
		_ = session.Refresh(c.Request.Context())
	}

	c.JSON(http.StatusOK, session.State())
}

// refresh handles POST /api/v1/onboarding/refresh
func (h *Handler) refresh(c *gin.Context) {
	session := h.session(c)

	if err := session.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "state": session.State()})
		return
	}

	c.JSON(http.StatusOK, session.State())
}

// SelectRequest is the body of the select call.
type SelectRequest struct {
	WorkspaceType string `json:"workspace_type"`
	Template      string `json:"template"`
}

// selectWorkspace handles POST /api/v1/onboarding/select
func (h *Handler) selectWorkspace(c *gin.Context) {
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session := h.session(c)
	session.Select(req.WorkspaceType, req.Template)

	c.JSON(http.StatusOK, session.State())
}

// dismissError handles POST /api/v1/onboarding/dismiss-error
func (h *Handler) dismissError(c *gin.Context) {
	session := h.session(c)
	session.DismissError()
	c.JSON(http.StatusOK, session.State())
}

// action wraps a session action with the shared error mapping: eager
// rejections come back as 409 so the frontend can re-disable its controls,
// upstream rejections as 4xx/502, and the state snapshot always rides along.
func (h *Handler) action(fn func(*gin.Context, *Session) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := h.session(c)

		err := fn(c, session)
		if err == nil {
			c.JSON(http.StatusOK, session.State())
			return
		}

		statusCode := http.StatusInternalServerError
		var apiErr *APIError
		switch {
		case errors.Is(err, ErrActionNotAllowed), errors.Is(err, ErrBusy):
			statusCode = http.StatusConflict
		case errors.As(err, &apiErr):
			if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
				statusCode = apiErr.StatusCode
			} else {
				statusCode = http.StatusBadGateway
			}
		}

		c.JSON(statusCode, gin.H{"error": err.Error(), "state": session.State()})
	}
}

// progressStream handles GET /api/v1/onboarding/ws
func (h *Handler) progressStream(c *gin.Context) {
	tenantID := auth.TenantID(c)

	// Touch the session so the poller exists before the first push.
	h.session(c)

	if err := h.wsHandle(c.Writer, c.Request, tenantID); err != nil {
		h.logger.Error("Failed to open progress stream",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
