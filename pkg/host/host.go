// Package host defines the capabilities the resolver needs from the host
// application and provides in-memory and HTTP implementations of them.
package host

import "github.com/psantana5/renderhook/pkg/models"

// DeviceHost toggles compute devices and declares the render device mode
type DeviceHost interface {
	// SetComputeDeviceType selects the accelerator backend the host prefers
	SetComputeDeviceType(kind models.DeviceKind) error

	// UseGPU declares GPU rendering on the scene
	UseGPU() error

	// SetDeviceEnabled flips the "use" flag of one device
	SetDeviceEnabled(id string, enabled bool) error
}

// NodeHost mutates compositor state
type NodeHost interface {
	// EnableCompositing turns on post-processing and node usage for the scene
	EnableCompositing() error

	// SetBasePath assigns the output directory of one compositor node
	SetBasePath(id, path string) error
}

// SceneHost mutates scene-wide render settings
type SceneHost interface {
	SetPersistentData(enabled bool) error
}

// Lister exposes the host's current listings. Results are read once at the
// start of a pass.
type Lister interface {
	Engine() (string, error)
	Devices() ([]models.ComputeDevice, error)
	OutputNodes() ([]models.OutputNode, error)
}

// Host is everything a resolution pass talks to
type Host interface {
	Lister
	DeviceHost
	NodeHost
	SceneHost
}
