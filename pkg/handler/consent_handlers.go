// Consent HTTP handlers
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/havenai/haven/pkg/event"
	"github.com/havenai/haven/pkg/models"
	"github.com/havenai/haven/pkg/service"
)

// ConsentHandler handles consent read/update requests
type ConsentHandler struct {
	consentService *service.ConsentService
}

// NewConsentHandler creates a new consent handler
func NewConsentHandler(consentService *service.ConsentService) *ConsentHandler {
	return &ConsentHandler{
		consentService: consentService,
	}
}

// RegisterRoutes registers consent routes
func (h *ConsentHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/consent", h.GetConsent)
	r.PUT("/consent", h.UpdateConsent)
}

// GetConsent returns the caller's current grants.
// GET /api/v1/consent
func (h *ConsentHandler) GetConsent(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header is required"})
		return
	}
	c.JSON(http.StatusOK, h.consentService.Snapshot(userID))
}

// UpdateConsent applies a partial grant update.
// PUT /api/v1/consent
func (h *ConsentHandler) UpdateConsent(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header is required"})
		return
	}

	var req models.UpdateConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshot, err := h.consentService.Update(userID, &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update consent"})
		return
	}

	event.Emit(event.ConsentUpdatedEvent{UserID: userID})
	c.JSON(http.StatusOK, snapshot)
}
