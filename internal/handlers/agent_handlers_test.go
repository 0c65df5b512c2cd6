package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/agent"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/config"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/middleware"
)

func agentRouter() *gin.Engine {
	ag := agent.New(config.Default().Agent)
	auth := middleware.NewAuthService("s3cret", "")
	h := NewAgentHandlers(ag, auth)
	r := gin.New()
	r.POST("/get-status", h.GetStatus)
	return r
}

func postStatus(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/get-status", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestAgentGetStatus(t *testing.T) {
	r := agentRouter()

	if w := postStatus(r, `{"passwd":"s3cret"}`); w.Code != http.StatusOK {
		t.Errorf("correct secret: %d %s", w.Code, w.Body.String())
	}
	if w := postStatus(r, `{"passwd":"wrong"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret: %d", w.Code)
	}
	if w := postStatus(r, `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("malformed body: %d", w.Code)
	}
}

func TestAgentGetStatusWireFormat(t *testing.T) {
	r := agentRouter()
	w := postStatus(r, `{"passwd":"s3cret"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	for _, key := range []string{`"hostname"`, `"last_update"`, `"gpus"`} {
		if !strings.Contains(w.Body.String(), key) {
			t.Errorf("report missing %s: %s", key, w.Body.String())
		}
	}
}
