package handlers

import (
	"fmt"
	"html"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/cluster"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/middleware"
)

// MonitorHandlers serves the cluster snapshot and the small web UI.
type MonitorHandlers struct {
	cluster *cluster.Cluster
	auth    *middleware.AuthService
	webDir  string
}

func NewMonitorHandlers(cl *cluster.Cluster, auth *middleware.AuthService, webDir string) *MonitorHandlers {
	return &MonitorHandlers{cluster: cl, auth: auth, webDir: webDir}
}

// Home serves the dashboard page.
func (h *MonitorHandlers) Home(c *gin.Context) {
	c.File(filepath.Join(h.webDir, "monitor_home.html"))
}

// GetStatus returns the latest cluster snapshot as JSON.
func (h *MonitorHandlers) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.cluster.GetSnapshot())
}

// Bookings renders the classified booking table as a plain HTML table for
// quick inspection.
func (h *MonitorHandlers) Bookings(c *gin.Context) {
	table := h.cluster.ClassifiedBookings()
	var b strings.Builder
	b.WriteString("<table border=\"1\"><tr><th>title</th><th>who</th><th>day</th><th>hostname</th><th>index</th><th>code</th></tr>")
	for _, r := range table {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%d</td><td>%s</td><td>%d</td><td>%d</td></tr>",
			html.EscapeString(r.Title), html.EscapeString(r.Who), r.Day,
			html.EscapeString(r.Hostname), r.Index, r.Code)
	}
	b.WriteString("</table>")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(b.String()))
}

// Users returns the current allow-list, one username per line.
func (h *MonitorHandlers) Users(c *gin.Context) {
	c.String(http.StatusOK, strings.Join(h.cluster.Users(), "\n"))
}

// RefreshUsers reloads the allow-list from its source.
func (h *MonitorHandlers) RefreshUsers(c *gin.Context) {
	if err := h.cluster.RefreshUserList(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.String(http.StatusOK, "Done")
}
