// Interaction HTTP handlers
package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/havenai/haven/pkg/models"
	"github.com/havenai/haven/pkg/service"
)

// Payload caps for inline uploads.
const (
	maxAudioBytes = 10 << 20
	maxImageBytes = 8 << 20
)

// InteractHandler handles the multimodal interaction endpoint.
type InteractHandler struct {
	orchestrator *service.Orchestrator
}

// NewInteractHandler creates a new interaction handler
func NewInteractHandler(orchestrator *service.Orchestrator) *InteractHandler {
	return &InteractHandler{
		orchestrator: orchestrator,
	}
}

// RegisterRoutes registers interaction routes
func (h *InteractHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/interact", h.Interact)
}

// Interact handles one conversational turn.
// POST /api/v1/interact (multipart/form-data)
//
// Form fields: input_type (text|audio|image), image_type, response_mode,
// session_id, text. File parts: audio, image. User comes from the
// X-User-ID header.
func (h *InteractHandler) Interact(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header is required"})
		return
	}

	req := &models.InteractRequest{
		UserID:       userID,
		SessionID:    c.PostForm("session_id"),
		InputType:    c.PostForm("input_type"),
		ImageType:    c.PostForm("image_type"),
		ResponseMode: c.PostForm("response_mode"),
		Text:         c.PostForm("text"),
	}
	if req.InputType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "input_type is required"})
		return
	}

	switch req.InputType {
	case "audio":
		data, err := readFilePart(c, "audio", maxAudioBytes)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "audio file is required for audio input"})
			return
		}
		req.Audio = data
	case "image":
		data, err := readFilePart(c, "image", maxImageBytes)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required for image input"})
			return
		}
		req.Image = data
	case "text":
		if req.Text == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text is required for text input"})
			return
		}
	}

	resp, err := h.orchestrator.Interact(c.Request.Context(), req)
	if err != nil {
		var unroutable *models.UnroutableInputError
		if errors.As(err, &unroutable) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": unroutable.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func readFilePart(c *gin.Context, field string, maxBytes int64) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, err
	}
	if fh.Size > maxBytes {
		return nil, errors.New("file too large")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxBytes))
}
