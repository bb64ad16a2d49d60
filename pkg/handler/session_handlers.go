// Session and summary HTTP handlers
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/havenai/haven/pkg/service"
)

// SessionHandler handles session lifecycle and history requests
type SessionHandler struct {
	sessionService *service.SessionService
	summaryService *service.SummaryService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionService *service.SessionService, summaryService *service.SummaryService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		summaryService: summaryService,
	}
}

// RegisterRoutes registers session routes
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	sessions := r.Group("/sessions")
	{
		sessions.GET("", h.ListSessions)
		sessions.GET("/:id/turns", h.GetTurns)
		sessions.POST("/:id/end", h.EndSession)
	}
	r.GET("/summaries", h.ListSummaries)
}

// ListSessions returns the caller's sessions, newest first.
// GET /api/v1/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header is required"})
		return
	}
	sessions, err := h.sessionService.List(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// GetTurns returns the persisted transcript of one session.
// GET /api/v1/sessions/:id/turns?limit=100
func (h *SessionHandler) GetTurns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	turns, err := h.sessionService.Turns(c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load turns"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"turns": turns})
}

// EndSession closes a session and kicks off summarization.
// POST /api/v1/sessions/:id/end
func (h *SessionHandler) EndSession(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header is required"})
		return
	}
	if err := h.sessionService.End(c.Request.Context(), c.Param("id"), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

// ListSummaries returns recent cross-session summaries for the caller.
// GET /api/v1/summaries?limit=10
func (h *SessionHandler) ListSummaries(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	summaries, err := h.summaryService.Recent(userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load summaries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summaries": summaries})
}
