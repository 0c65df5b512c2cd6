package cluster

import (
	"time"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/models"
)

// nodeState wraps the last successful agent report for one node together
// with its derived reachability. A node that has never answered has no
// nodeState at all and is later rendered as a placeholder.
type nodeState struct {
	status    *models.NodeStatus
	reachable bool
}

// storeNodeSuccess records an agent report. Reachability still derives
// from the report's age: an agent that answers but serves stale facts
// (its sampler wedged) does not count as live. Must hold c.mu.
func (c *Cluster) storeNodeSuccess(name string, st *models.NodeStatus, now time.Time) {
	c.nodes[name] = &nodeState{status: st, reachable: st.Age(now) <= c.cfg.NodeExpiry()}
}

// storeNodeFailure recomputes reachability after a failed poll. The previous
// report is kept; only its age against the expiry threshold decides whether
// the node still counts as reachable. Must hold c.mu.
func (c *Cluster) storeNodeFailure(name string, now time.Time) {
	ns, ok := c.nodes[name]
	if !ok {
		return
	}
	ns.reachable = ns.status.Age(now) <= c.cfg.NodeExpiry()
}

// copyNodeStates returns a point-in-time copy of the node map so the
// reconcile loop can work outside the lock. The NodeStatus values are
// shared but immutable once stored. Must hold c.mu.
func (c *Cluster) copyNodeStates() map[string]nodeState {
	out := make(map[string]nodeState, len(c.nodes))
	for name, ns := range c.nodes {
		out[name] = *ns
	}
	return out
}
