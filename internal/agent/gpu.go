package agent

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/srhthu/GPU-Calendar-Monitor/internal/models"
)

const (
	smiBinary     = "nvidia-smi"
	gpuQuery      = "--query-gpu=index,name,memory.used,memory.total,utilization.gpu,temperature.gpu"
	serialQuery   = "--query-gpu=serial,index"
	computeQuery  = "--query-compute-apps=gpu_serial,pid,used_memory"
	csvFormat     = "--format=csv,noheader,nounits"
	maxCommandLen = 500
)

// runner abstracts command execution so parsers can be exercised without
// a GPU present.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// sampleGPUs queries nvidia-smi for per-GPU stats.
func sampleGPUs(ctx context.Context, run runner) ([]models.GPUStatus, error) {
	out, err := run(ctx, smiBinary, gpuQuery, csvFormat)
	if err != nil {
		return nil, fmt.Errorf("query gpu: %w", err)
	}
	return ParseGPUStats(string(out))
}

// ParseGPUStats parses the CSV rows of the gpu query. Malformed rows are
// skipped so one odd line cannot lose the whole sample.
func ParseGPUStats(out string) ([]models.GPUStatus, error) {
	var gpus []models.GPUStatus
	for _, line := range strings.Split(out, "\n") {
		fields := splitCSV(line)
		if len(fields) != 6 {
			continue
		}
		index, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		gpus = append(gpus, models.GPUStatus{
			Index:       index,
			Name:        fields[1],
			MemoryUsed:  atoiOr0(fields[2]),
			MemoryTotal: atoiOr0(fields[3]),
			Utilization: atoiOr0(fields[4]),
			Temperature: atoiOr0(fields[5]),
			Processes:   []models.GPUProcess{},
		})
	}
	return gpus, nil
}

// sampleSerialMap maps GPU serial numbers to indices; compute-app rows
// identify their GPU by serial.
func sampleSerialMap(ctx context.Context, run runner) (map[string]int, error) {
	out, err := run(ctx, smiBinary, serialQuery, csvFormat)
	if err != nil {
		return nil, fmt.Errorf("query serial: %w", err)
	}
	return ParseSerialMap(string(out)), nil
}

// ParseSerialMap parses "serial, index" CSV rows.
func ParseSerialMap(out string) map[string]int {
	serials := make(map[string]int)
	for _, line := range strings.Split(out, "\n") {
		fields := splitCSV(line)
		if len(fields) != 2 {
			continue
		}
		index, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		serials[fields[0]] = index
	}
	return serials
}

// computeApp is one raw compute process row before owner resolution.
type computeApp struct {
	Index     int
	PID       int
	MemoryMiB int
}

// ParseComputeApps parses "gpu_serial, pid, used_memory" rows, resolving
// serials through the serial map. Rows with unknown serials are dropped.
func ParseComputeApps(out string, serials map[string]int) []computeApp {
	var apps []computeApp
	for _, line := range strings.Split(out, "\n") {
		fields := splitCSV(line)
		if len(fields) != 3 {
			continue
		}
		index, ok := serials[fields[0]]
		if !ok {
			continue
		}
		pid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		apps = append(apps, computeApp{Index: index, PID: pid, MemoryMiB: atoiOr0(fields[2])})
	}
	return apps
}

// sampleProcesses queries compute apps and resolves each pid to its owner
// and command line. Processes that exit before resolution are dropped.
func sampleProcesses(ctx context.Context, run runner, serials map[string]int) (map[int][]models.GPUProcess, error) {
	out, err := run(ctx, smiBinary, computeQuery, csvFormat)
	if err != nil {
		return nil, fmt.Errorf("query compute apps: %w", err)
	}
	procs := make(map[int][]models.GPUProcess)
	for _, app := range ParseComputeApps(string(out), serials) {
		username, command, err := processOwner(ctx, app.PID)
		if err != nil || username == "" {
			continue
		}
		procs[app.Index] = append(procs[app.Index], models.GPUProcess{
			PID:       app.PID,
			Username:  username,
			MemoryMiB: app.MemoryMiB,
			Command:   command,
		})
	}
	return procs, nil
}

// processOwner resolves a pid to its username and command line.
func processOwner(ctx context.Context, pid int) (string, string, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return "", "", err
	}
	username, err := proc.UsernameWithContext(ctx)
	if err != nil {
		return "", "", err
	}
	command, err := proc.CmdlineWithContext(ctx)
	if err != nil {
		command = ""
	}
	if len(command) > maxCommandLen {
		command = command[:maxCommandLen]
	}
	return username, command, nil
}

func splitCSV(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

func atoiOr0(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
