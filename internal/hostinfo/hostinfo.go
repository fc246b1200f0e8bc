// Package hostinfo detects the compute devices of the local machine so a
// snapshot can be resolved without a running render host.
package hostinfo

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/psantana5/renderhook/pkg/models"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// GPU is one accelerator reported by the driver tools
type GPU struct {
	Index string
	Name  string
	BusID string
}

// Info summarizes the local hardware
type Info struct {
	CPUModel   string
	CPUThreads int
	RAMBytes   uint64
	GPUs       []GPU
	OS         string
	Arch       string
}

// Runner executes an external command and returns its stdout
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Detector gathers hardware information
type Detector struct {
	run Runner
}

// NewDetector creates a detector using real system commands
func NewDetector() *Detector {
	return &Detector{run: execRunner}
}

// NewDetectorWithRunner creates a detector with a custom command runner
func NewDetectorWithRunner(run Runner) *Detector {
	return &Detector{run: run}
}

// Detect collects CPU, memory and NVIDIA GPU information. Missing tools are
// not an error; the corresponding fields stay empty.
func (d *Detector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		CPUModel:   "Unknown",
		CPUThreads: runtime.NumCPU(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
	}

	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 && cpus[0].ModelName != "" {
		info.CPUModel = strings.TrimSpace(cpus[0].ModelName)
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		info.CPUThreads = n
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory info: %w", err)
	}
	info.RAMBytes = vm.Total

	info.GPUs = d.detectNVIDIA(ctx)
	return info, nil
}

func (d *Detector) detectNVIDIA(ctx context.Context) []GPU {
	out, err := d.run(ctx, "nvidia-smi", "--query-gpu=index,name,pci.bus_id", "--format=csv,noheader")
	if err != nil {
		return nil
	}
	return parseNVIDIA(string(out))
}

// parseNVIDIA parses "index, name, bus id" CSV lines
func parseNVIDIA(out string) []GPU {
	var gpus []GPU
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			continue
		}
		gpu := GPU{
			Index: strings.TrimSpace(parts[0]),
			Name:  strings.TrimSpace(parts[1]),
		}
		if len(parts) > 2 {
			gpu.BusID = strings.TrimSpace(parts[2])
		}
		gpus = append(gpus, gpu)
	}
	return gpus
}

// Devices lists devices the way the render host enumerates them: each
// NVIDIA GPU once per backend (CUDA, then OPTIX), followed by the CPU.
func (i *Info) Devices() []models.ComputeDevice {
	var devices []models.ComputeDevice
	for _, kind := range []models.DeviceKind{models.DeviceKindCUDA, models.DeviceKindOptiX} {
		for _, g := range i.GPUs {
			id := fmt.Sprintf("%s_%s", kind, g.Index)
			if g.BusID != "" {
				id = fmt.Sprintf("%s_%s", kind, g.BusID)
			}
			devices = append(devices, models.ComputeDevice{ID: id, Name: g.Name, Kind: kind})
		}
	}
	devices = append(devices, models.ComputeDevice{ID: "CPU", Name: i.CPUModel, Kind: models.DeviceKindCPU})
	return devices
}

// Snapshot builds a scene snapshot for engine over the detected devices
func (i *Info) Snapshot(engine string) *models.Snapshot {
	return &models.Snapshot{
		Engine:     engine,
		DeviceMode: models.DeviceModeCPU,
		Devices:    i.Devices(),
		Nodes:      []models.OutputNode{},
	}
}
