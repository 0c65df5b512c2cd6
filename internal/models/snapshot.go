package models

import "time"

// BookingCell is one calendar entry shown for a GPU on a given day.
type BookingCell struct {
	Title string        `json:"title"`
	Who   string        `json:"who"`
	Code  ViolationCode `json:"code"`
}

// ProcessView is a live GPU process tagged with booking legality.
// Illegal is true when the owner has no valid booking covering the
// GPU today.
type ProcessView struct {
	GPUProcess
	Illegal bool `json:"user_code"`
}

// GPUView is one GPU enriched with its calendar and tagged processes.
type GPUView struct {
	Index       int           `json:"index"`
	Name        string        `json:"name"`
	MemoryUsed  int           `json:"use_mem"`
	MemoryTotal int           `json:"tot_mem"`
	Utilization int           `json:"utilize"`
	Temperature int           `json:"temp"`
	Processes   []ProcessView `json:"users"`
	// Calendar is indexed by day offset; each entry lists the bookings
	// for that day. Nil when calendar integration is disabled.
	Calendar [][]BookingCell `json:"calendar,omitempty"`
}

// NodeView is one node as exposed to readers: either the last known agent
// report or a synthesized placeholder for a node that never answered.
type NodeView struct {
	Hostname   string          `json:"hostname"`
	Reachable  bool            `json:"status"`
	Brand      string          `json:"version"` // GPU brand of the first GPU
	LastUpdate time.Time       `json:"last_update"`
	Interfaces []InterfaceAddr `json:"ips,omitempty"`
	GPUs       []GPUView       `json:"gpus"`
}

// ClusterSnapshot is the immutable cluster-wide view handed to the serving
// layer. A snapshot is fully assembled before publication and never mutated
// afterwards; readers always observe a consistent object.
type ClusterSnapshot struct {
	Dates         []string   `json:"date_list"`
	CalendarFresh bool       `json:"calendar_status"`
	CalendarIDs   []string   `json:"teamup_ids"`
	Nodes         []NodeView `json:"Nodes"`
	IllegalUsers  []string   `json:"illegal_users"`
	AssembledAt   time.Time  `json:"assembled_at"`
}
