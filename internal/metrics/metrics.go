// Package metrics exposes monitor health counters on /metrics.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// NodePolls counts agent polls by node and result ("ok"/"error").
	NodePolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_node_polls_total",
		Help: "Node agent polls by result.",
	}, []string{"node", "result"})

	// CalendarRefreshes counts calendar source refreshes by result.
	CalendarRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_calendar_refreshes_total",
		Help: "Calendar source refreshes by result.",
	}, []string{"calendar", "result"})

	// SnapshotAssemblies counts published cluster snapshots.
	SnapshotAssemblies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_snapshot_assemblies_total",
		Help: "Cluster snapshots assembled and published.",
	})

	// IllegalUsers tracks the size of the current illegal-user set.
	IllegalUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_illegal_users",
		Help: "Users with an unbooked GPU process in the latest snapshot.",
	})

	// ReachableNodes tracks how many configured nodes are reachable.
	ReachableNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_reachable_nodes",
		Help: "Configured nodes currently reachable.",
	})
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Handler adapts the prometheus handler to gin.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
