package cluster

import (
	"sort"
	"strings"
	"time"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/models"
)

// assembleInput is the consistent view the reconcile loop copies out of the
// shared state before building a snapshot.
type assembleInput struct {
	nodes         map[string]nodeState
	table         []models.ClassifiedBooking
	dates         []string
	calendarFresh bool
}

// assemble builds a complete, immutable cluster snapshot. It never fails:
// nodes without facts become placeholders and missing calendar data yields
// empty calendars.
func (c *Cluster) assemble(in assembleInput, now time.Time) *models.ClusterSnapshot {
	snap := &models.ClusterSnapshot{
		Dates:         in.dates,
		CalendarFresh: in.calendarFresh,
		CalendarIDs:   c.cfg.CalendarIDs,
		AssembledAt:   now,
	}

	booked := bookedNames(in.table)
	illegal := make(map[string]struct{})

	names := make([]string, 0, len(c.cfg.Nodes))
	for _, n := range c.cfg.Nodes {
		names = append(names, n.Name)
	}
	for _, host := range rankNodes(names, c.cfg.RankPatterns) {
		ns, ok := in.nodes[host]
		var view models.NodeView
		if !ok {
			view = placeholderNode(host, in.table)
		} else {
			view = nodeView(host, ns)
		}
		for i := range view.GPUs {
			gpu := &view.GPUs[i]
			if c.cfg.CalendarEnabled {
				gpu.Calendar = gpuCalendar(in.table, host, gpu.Index, len(in.dates))
			}
			// Only processes on live nodes are judged; a stale report
			// tells nothing about who occupies the GPU right now.
			if !ok || !ns.reachable || !c.cfg.CalendarEnabled {
				continue
			}
			bname := booked[slotKey{host, gpu.Index}]
			for j := range gpu.Processes {
				p := &gpu.Processes[j]
				p.Illegal = processIllegal(p.Username, bname)
				if p.Illegal {
					illegal[p.Username] = struct{}{}
				}
			}
		}
		if len(view.GPUs) > 0 {
			view.Brand = view.GPUs[0].Name
		}
		snap.Nodes = append(snap.Nodes, view)
	}

	snap.IllegalUsers = make([]string, 0, len(illegal))
	for u := range illegal {
		snap.IllegalUsers = append(snap.IllegalUsers, u)
	}
	sort.Strings(snap.IllegalUsers)
	return snap
}

// nodeView converts a stored agent report into a reader-facing view.
func nodeView(host string, ns nodeState) models.NodeView {
	view := models.NodeView{
		Hostname:   host,
		Reachable:  ns.reachable,
		LastUpdate: ns.status.LastUpdate,
		Interfaces: ns.status.Interfaces,
		GPUs:       make([]models.GPUView, 0, len(ns.status.GPUs)),
	}
	for _, g := range ns.status.GPUs {
		gv := models.GPUView{
			Index:       g.Index,
			Name:        g.Name,
			MemoryUsed:  g.MemoryUsed,
			MemoryTotal: g.MemoryTotal,
			Utilization: g.Utilization,
			Temperature: g.Temperature,
			Processes:   make([]models.ProcessView, 0, len(g.Processes)),
		}
		for _, p := range g.Processes {
			gv.Processes = append(gv.Processes, models.ProcessView{GPUProcess: p})
		}
		view.GPUs = append(view.GPUs, gv)
	}
	return view
}

// placeholderNode synthesizes a view for a node that has never reported.
// Its GPU count is inferred from the highest booked index so a fully-down
// node still shows its calendar slots instead of disappearing.
func placeholderNode(host string, table []models.ClassifiedBooking) models.NodeView {
	count := 0
	for _, b := range table {
		if b.Hostname == host && b.Index+1 > count {
			count = b.Index + 1
		}
	}
	view := models.NodeView{Hostname: host, Reachable: false}
	for i := 0; i < count; i++ {
		// Non-zero total memory keeps usage bars at 0% instead of NaN.
		view.GPUs = append(view.GPUs, models.GPUView{Index: i, MemoryTotal: 100})
	}
	return view
}

// gpuCalendar builds the day-indexed booking cells for one GPU.
func gpuCalendar(table []models.ClassifiedBooking, host string, index, days int) [][]models.BookingCell {
	cal := make([][]models.BookingCell, days)
	for i := range cal {
		cal[i] = []models.BookingCell{}
	}
	for _, b := range table {
		if b.Hostname != host || b.Index != index || b.Day < 0 || b.Day >= days {
			continue
		}
		cal[b.Day] = append(cal[b.Day], models.BookingCell{Title: b.Title, Who: b.Who, Code: b.Code})
	}
	return cal
}

// rankNodes orders hostnames into pattern buckets, each sorted
// alphabetically, with unmatched hosts last. Patterns are a display
// policy from the config, not business logic.
func rankNodes(hosts []string, patterns []string) []string {
	buckets := make([][]string, len(patterns)+1)
	for _, h := range hosts {
		placed := false
		for i, p := range patterns {
			if strings.Contains(h, p) {
				buckets[i] = append(buckets[i], h)
				placed = true
				break
			}
		}
		if !placed {
			buckets[len(patterns)] = append(buckets[len(patterns)], h)
		}
	}
	out := make([]string, 0, len(hosts))
	for _, b := range buckets {
		sort.Strings(b)
		out = append(out, b...)
	}
	return out
}
