package models

// DeviceKind represents the acceleration backend of a compute device
type DeviceKind string

const (
	DeviceKindCPU    DeviceKind = "CPU"
	DeviceKindCUDA   DeviceKind = "CUDA"
	DeviceKindOptiX  DeviceKind = "OPTIX"
	DeviceKindHIP    DeviceKind = "HIP"
	DeviceKindOneAPI DeviceKind = "ONEAPI"
)

// DeviceKindFirst is the wildcard request for the first detected accelerator.
// It is a request value only; no device ever reports it.
const DeviceKindFirst = "FIRST"

// AcceleratorKinds lists the non-CPU kinds a request may name explicitly
var AcceleratorKinds = []DeviceKind{
	DeviceKindCUDA,
	DeviceKindOptiX,
	DeviceKindHIP,
	DeviceKindOneAPI,
}

// IsAccelerator reports whether k is one of the recognized non-CPU kinds
func (k DeviceKind) IsAccelerator() bool {
	for _, a := range AcceleratorKinds {
		if k == a {
			return true
		}
	}
	return false
}

// ComputeDevice is a device as enumerated by the host, in detection order.
// ID is the opaque handle the host uses to address the device.
type ComputeDevice struct {
	ID      string     `json:"id" yaml:"id"`
	Name    string     `json:"name" yaml:"name"`
	Kind    DeviceKind `json:"kind" yaml:"kind"`
	Enabled bool       `json:"enabled" yaml:"enabled"`
	// Locked devices reject enable/disable requests (simulates host rejection)
	Locked bool `json:"locked,omitempty" yaml:"locked,omitempty"`
}

// FirstAccelerator returns the first device whose kind is not CPU,
// preserving host order. ok is false when every device is a CPU.
func FirstAccelerator(devices []ComputeDevice) (ComputeDevice, bool) {
	for _, d := range devices {
		if d.Kind != DeviceKindCPU {
			return d, true
		}
	}
	return ComputeDevice{}, false
}
