package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newInteractRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewInteractHandler(nil) // validation paths never reach the orchestrator
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func postForm(r *gin.Engine, userID string, form string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/interact", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestInteractRequiresUserHeader(t *testing.T) {
	r := newInteractRouter()
	w := postForm(r, "", "input_type=text&text=hello")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "X-User-ID") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestInteractRequiresInputType(t *testing.T) {
	r := newInteractRouter()
	w := postForm(r, "u1", "text=hello")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestInteractRequiresTextForTextInput(t *testing.T) {
	r := newInteractRouter()
	w := postForm(r, "u1", "input_type=text")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestInteractRequiresAudioFile(t *testing.T) {
	r := newInteractRouter()
	w := postForm(r, "u1", "input_type=audio")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "audio") {
		t.Fatalf("body = %s", w.Body.String())
	}
}
