package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/agent"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/middleware"
)

// AgentHandlers serves the node-local status report to the monitor.
type AgentHandlers struct {
	agent *agent.Agent
	auth  *middleware.AuthService
}

func NewAgentHandlers(a *agent.Agent, auth *middleware.AuthService) *AgentHandlers {
	return &AgentHandlers{agent: a, auth: auth}
}

// GetStatus answers the monitor's poll. The shared secret travels in the
// request body, matching the historical agent wire format.
func (h *AgentHandlers) GetStatus(c *gin.Context) {
	var body struct {
		Passwd string `json:"passwd"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request"})
		return
	}
	if !h.auth.CheckSecret(body.Passwd) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong secret"})
		return
	}
	c.JSON(http.StatusOK, h.agent.Status())
}
