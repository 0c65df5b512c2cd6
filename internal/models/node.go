package models

import "time"

// InterfaceAddr is one network interface and its IPv4 address on a node.
type InterfaceAddr struct {
	Name string `json:"name"`
	Addr string `json:"addr"`
}

// GPUProcess describes one process currently holding memory on a GPU.
type GPUProcess struct {
	PID       int    `json:"pid"`
	Username  string `json:"username"`
	MemoryMiB int    `json:"mem(MiB)"`
	Command   string `json:"command"`
}

// GPUStatus is the status of a single GPU as reported by a node agent.
// Field keys match the agent wire format consumed by the web frontend.
type GPUStatus struct {
	Index       int          `json:"index"`
	Name        string       `json:"name"`
	MemoryUsed  int          `json:"use_mem"`
	MemoryTotal int          `json:"tot_mem"`
	Utilization int          `json:"utilize"`
	Temperature int          `json:"temp"`
	Processes   []GPUProcess `json:"users"`
}

// NodeStatus is the full status report of one node. Immutable once received
// from the agent; the monitor never mutates a stored report in place.
type NodeStatus struct {
	Hostname   string          `json:"hostname"`
	LastUpdate time.Time       `json:"last_update"`
	Interfaces []InterfaceAddr `json:"ips"`
	GPUs       []GPUStatus     `json:"gpus"`
}

// Age returns how long ago the report was produced.
func (n *NodeStatus) Age(now time.Time) time.Duration {
	return now.Sub(n.LastUpdate)
}
