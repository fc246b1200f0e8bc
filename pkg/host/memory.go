package host

import (
	"sync"

	"github.com/psantana5/renderhook/pkg/models"
)

// MemoryHost is an in-memory host backed by a snapshot. Devices flagged
// Locked and nodes flagged ReadOnly reject mutation with ErrRejected.
type MemoryHost struct {
	mu    sync.RWMutex
	state *models.Snapshot

	// RejectScene makes every scene-level mutation fail
	RejectScene bool
}

// NewMemoryHost creates a host over a private copy of snap
func NewMemoryHost(snap *models.Snapshot) *MemoryHost {
	return &MemoryHost{state: snap.Clone()}
}

// Snapshot returns a copy of the current state
func (h *MemoryHost) Snapshot() *models.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.Clone()
}

// Engine returns the render engine identifier
func (h *MemoryHost) Engine() (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.Engine, nil
}

// Devices returns devices in detection order
func (h *MemoryHost) Devices() ([]models.ComputeDevice, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]models.ComputeDevice(nil), h.state.Devices...), nil
}

// OutputNodes returns all compositor nodes, of every kind
func (h *MemoryHost) OutputNodes() ([]models.OutputNode, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]models.OutputNode(nil), h.state.Nodes...), nil
}

// SetComputeDeviceType records the preferred accelerator backend
func (h *MemoryHost) SetComputeDeviceType(kind models.DeviceKind) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.RejectScene {
		return NewRejection("scene", "", "set compute device type", ErrRejected)
	}
	h.state.ComputeDeviceType = kind
	return nil
}

// UseGPU switches the scene to GPU rendering
func (h *MemoryHost) UseGPU() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.RejectScene {
		return NewRejection("scene", "", "use gpu", ErrRejected)
	}
	h.state.DeviceMode = models.DeviceModeGPU
	return nil
}

// SetDeviceEnabled flips the use flag of a device
func (h *MemoryHost) SetDeviceEnabled(id string, enabled bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.state.Devices {
		d := &h.state.Devices[i]
		if d.ID != id {
			continue
		}
		if d.Locked {
			return NewRejection("device", id, "set enabled", ErrRejected)
		}
		d.Enabled = enabled
		return nil
	}
	return NewRejection("device", id, "set enabled", ErrDeviceNotFound)
}

// EnableCompositing turns on compositing and node usage
func (h *MemoryHost) EnableCompositing() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.RejectScene {
		return NewRejection("scene", "", "enable compositing", ErrRejected)
	}
	h.state.UseCompositing = true
	h.state.UseNodes = true
	return nil
}

// SetBasePath assigns the output directory of a node
func (h *MemoryHost) SetBasePath(id, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.state.Nodes {
		n := &h.state.Nodes[i]
		if n.ID != id {
			continue
		}
		if n.ReadOnly {
			return NewRejection("node", id, "set base path", ErrRejected)
		}
		n.BasePath = path
		return nil
	}
	return NewRejection("node", id, "set base path", ErrNodeNotFound)
}

// SetPersistentData toggles persistent data on the scene
func (h *MemoryHost) SetPersistentData(enabled bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.RejectScene {
		return NewRejection("scene", "", "set persistent data", ErrRejected)
	}
	h.state.UsePersistentData = enabled
	return nil
}
