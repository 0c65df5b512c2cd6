// Package agent samples local GPU, process and network status on a node
// and assembles the report served to the monitor.
package agent

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/config"
	"github.com/srhthu/GPU-Calendar-Monitor/internal/models"
)

// Agent maintains the node status report. General device info and GPU
// process info refresh on separate intervals; nvidia-smi compute-app
// queries are the slower of the two.
type Agent struct {
	cfg config.AgentConfig
	run runner

	mu       sync.RWMutex
	hostname string
	ifaces   []models.InterfaceAddr
	gpus     []models.GPUStatus
	procs    map[int][]models.GPUProcess
	updated  time.Time

	serials map[string]int

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New builds an agent. The GPU serial map is resolved once at startup;
// indices do not change while the driver is loaded.
func New(cfg config.AgentConfig) *Agent {
	a := &Agent{
		cfg:   cfg,
		run:   execRunner,
		procs: make(map[int][]models.GPUProcess),
		stop:  make(chan struct{}),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	serials, err := sampleSerialMap(ctx, a.run)
	if err != nil {
		log.Printf("gpu serial map unavailable: %v", err)
		serials = map[string]int{}
	}
	a.serials = serials
	return a
}

// Start launches the two sampler loops.
func (a *Agent) Start() {
	a.wg.Add(2)
	go a.sampleLoop()
	go a.procLoop()
}

// Stop terminates the samplers and waits for them.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
	a.wg.Wait()
}

func (a *Agent) sampleLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.SampleInterval())
	defer ticker.Stop()
	for {
		a.refresh()
		select {
		case <-ticker.C:
		case <-a.stop:
			return
		}
	}
}

func (a *Agent) procLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.ProcInterval())
	defer ticker.Stop()
	for {
		a.refreshProcs()
		select {
		case <-ticker.C:
		case <-a.stop:
			return
		}
	}
}

// refresh updates hostname, interfaces and per-GPU stats.
func (a *Agent) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hostname, err := os.Hostname()
	if err != nil {
		log.Printf("hostname: %v", err)
		return
	}
	gpus, err := sampleGPUs(ctx, a.run)
	if err != nil {
		log.Printf("gpu sample: %v", err)
		return
	}
	ifaces, err := interfaceAddrs(ctx)
	if err != nil {
		ifaces = nil
	}

	a.mu.Lock()
	a.hostname = hostname
	a.gpus = gpus
	a.ifaces = ifaces
	a.updated = time.Now()
	a.mu.Unlock()
}

// refreshProcs updates the GPU process table.
func (a *Agent) refreshProcs() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	procs, err := sampleProcesses(ctx, a.run, a.serials)
	if err != nil {
		log.Printf("gpu processes: %v", err)
		return
	}
	a.mu.Lock()
	a.procs = procs
	a.mu.Unlock()
}

// Status assembles the current report, merging the process table into the
// GPU list. The returned value is a copy; callers may not mutate agent
// state through it.
func (a *Agent) Status() models.NodeStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	gpus := make([]models.GPUStatus, len(a.gpus))
	for i, g := range a.gpus {
		gpus[i] = g
		procs := a.procs[g.Index]
		gpus[i].Processes = make([]models.GPUProcess, len(procs))
		copy(gpus[i].Processes, procs)
	}
	ifaces := make([]models.InterfaceAddr, len(a.ifaces))
	copy(ifaces, a.ifaces)

	return models.NodeStatus{
		Hostname:   a.hostname,
		LastUpdate: a.updated,
		Interfaces: ifaces,
		GPUs:       gpus,
	}
}
