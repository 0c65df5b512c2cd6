// Package cluster aggregates live node status and calendar bookings into a
// single consistent cluster snapshot, flagging users occupying GPUs outside
// their booked windows.
package cluster

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/config"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/metrics"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/models"
)

// NodeFetcher retrieves a node's status report. Implementations must honor
// the context deadline; the poller never waits longer than its timeout.
type NodeFetcher interface {
	FetchNodeStatus(ctx context.Context, addr string) (*models.NodeStatus, error)
}

// BookingFetcher retrieves one calendar source's bookings for the visible
// window, exploded to atomic records, plus the date axis.
type BookingFetcher interface {
	FetchBookings(ctx context.Context, calendarID string, windowDays int) ([]models.BookingRecord, []string, error)
}

// fetchTimeout bounds a single node poll so one slow agent cannot delay
// its loop past the next tick indefinitely.
const fetchTimeout = 3 * time.Second

// Cluster owns the shared monitoring state and the background loops that
// refresh it. A single mutex guards the node map and booking tables;
// readers never take it, they read the last published snapshot instead.
type Cluster struct {
	cfg     config.MonitorConfig
	nodeFet NodeFetcher
	bookFet BookingFetcher

	mu         sync.Mutex
	nodes      map[string]*nodeState
	bookings   map[string][]models.BookingRecord
	dates      []string
	calendarAt time.Time
	users      map[string]bool
	userNames  []string

	snapshot atomic.Pointer[models.ClusterSnapshot]

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New builds a Cluster and loads the user allow-list. Loops are not
// started until Start is called.
func New(cfg config.MonitorConfig, nodes NodeFetcher, bookings BookingFetcher) *Cluster {
	c := &Cluster{
		cfg:      cfg,
		nodeFet:  nodes,
		bookFet:  bookings,
		nodes:    make(map[string]*nodeState),
		bookings: make(map[string][]models.BookingRecord),
		stop:     make(chan struct{}),
	}
	if err := c.RefreshUserList(); err != nil {
		log.Printf("user list unavailable (%v); bookings will classify as invalid until refreshed", err)
		c.users = map[string]bool{}
	}
	// Publish an empty snapshot so readers never observe nil.
	c.snapshot.Store(c.assemble(assembleInput{nodes: map[string]nodeState{}}, time.Now()))
	return c
}

// Start launches one poll loop per node, one refresh loop per calendar
// source, and the reconcile loop. All loops run until Stop.
func (c *Cluster) Start() {
	for _, n := range c.cfg.Nodes {
		c.wg.Add(1)
		go c.nodeLoop(n)
	}
	if c.cfg.CalendarEnabled {
		for _, id := range c.cfg.CalendarIDs {
			c.wg.Add(1)
			go c.calendarLoop(id)
		}
	}
	c.wg.Add(1)
	go c.reconcileLoop()
}

// Stop terminates all loops and waits for them to exit.
func (c *Cluster) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}

// GetSnapshot returns the latest fully-assembled snapshot. Non-blocking.
func (c *Cluster) GetSnapshot() *models.ClusterSnapshot {
	return c.snapshot.Load()
}

// ClassifiedBookings classifies the current booking table on demand for
// the bookings page. Returns nil when calendar integration is disabled.
func (c *Cluster) ClassifiedBookings() []models.ClassifiedBooking {
	if !c.cfg.CalendarEnabled {
		return nil
	}
	c.mu.Lock()
	records := c.copyBookings()
	users := c.users
	c.mu.Unlock()
	q := Quotas{MaxGPUPerUser: c.cfg.MaxGPUPerUser, MaxDaysPerGPU: c.cfg.MaxDaysPerGPU}
	return Classify(records, users, q)
}

// nodeLoop polls one node forever. The network call happens outside the
// lock; only the result assignment is lock-held so pollers never block
// each other on a slow agent.
func (c *Cluster) nodeLoop(node config.NodeConfig) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.NodePoll())
	defer ticker.Stop()
	for {
		c.pollNode(node)
		select {
		case <-ticker.C:
		case <-c.stop:
			return
		}
	}
}

func (c *Cluster) pollNode(node config.NodeConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	st, err := c.nodeFet.FetchNodeStatus(ctx, node.Addr)
	cancel()

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		log.Printf("fetch %s: no response: %v", node.Name, err)
		metrics.NodePolls.WithLabelValues(node.Name, metrics.ResultError).Inc()
		c.storeNodeFailure(node.Name, now)
		return
	}
	metrics.NodePolls.WithLabelValues(node.Name, metrics.ResultOK).Inc()
	c.storeNodeSuccess(node.Name, st, now)
}

// calendarLoop refreshes one calendar source forever. Failures leave the
// source's previous table in place and are retried on the next tick.
func (c *Cluster) calendarLoop(calendarID string) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.CalendarRefresh())
	defer ticker.Stop()
	for {
		c.refreshCalendar(calendarID)
		select {
		case <-ticker.C:
		case <-c.stop:
			return
		}
	}
}

func (c *Cluster) refreshCalendar(calendarID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CalendarRefresh())
	records, dates, err := c.bookFet.FetchBookings(ctx, calendarID, c.cfg.WindowDays)
	cancel()
	if err != nil {
		log.Printf("calendar %s: %v", calendarID, err)
		metrics.CalendarRefreshes.WithLabelValues(calendarID, metrics.ResultError).Inc()
		return
	}
	metrics.CalendarRefreshes.WithLabelValues(calendarID, metrics.ResultOK).Inc()
	c.mu.Lock()
	c.storeBookings(calendarID, records, dates, time.Now())
	c.mu.Unlock()
}

// reconcileLoop runs classification, legality evaluation and snapshot
// assembly at a coarser interval than the pollers so it always reads a
// settled state.
func (c *Cluster) reconcileLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.Reconcile())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Reconcile(time.Now())
		case <-c.stop:
			return
		}
	}
}

// Reconcile takes a consistent copy of the shared state, classifies the
// booking table, evaluates process legality and publishes a new snapshot.
// Exposed for tests; production code drives it from the reconcile loop.
func (c *Cluster) Reconcile(now time.Time) {
	c.mu.Lock()
	var records []models.BookingRecord
	if c.cfg.CalendarEnabled {
		records = c.copyBookings()
	}
	in := assembleInput{
		nodes:         c.copyNodeStates(),
		dates:         c.dates,
		calendarFresh: c.calendarFresh(now),
	}
	users := c.users
	c.mu.Unlock()

	// Classification and assembly run outside the lock on the copied
	// table; pollers keep publishing meanwhile.
	if c.cfg.CalendarEnabled {
		q := Quotas{MaxGPUPerUser: c.cfg.MaxGPUPerUser, MaxDaysPerGPU: c.cfg.MaxDaysPerGPU}
		in.table = Classify(records, users, q)
	}
	snap := c.assemble(in, now)
	c.snapshot.Store(snap)

	metrics.SnapshotAssemblies.Inc()
	metrics.IllegalUsers.Set(float64(len(snap.IllegalUsers)))
	reachable := 0
	for _, n := range snap.Nodes {
		if n.Reachable {
			reachable++
		}
	}
	metrics.ReachableNodes.Set(float64(reachable))
}
