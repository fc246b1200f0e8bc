package models

// DeviceMode is the render device mode declared on the scene
type DeviceMode string

const (
	DeviceModeCPU DeviceMode = "CPU"
	DeviceModeGPU DeviceMode = "GPU"
)

// Snapshot is the serializable state of a host scene: what the host exposes
// to the resolver before a pass and what it holds after one.
type Snapshot struct {
	Engine            string          `json:"engine" yaml:"engine"`
	DeviceMode        DeviceMode      `json:"device_mode" yaml:"device_mode"`
	ComputeDeviceType DeviceKind      `json:"compute_device_type,omitempty" yaml:"compute_device_type,omitempty"`
	UseCompositing    bool            `json:"use_compositing" yaml:"use_compositing"`
	UseNodes          bool            `json:"use_nodes" yaml:"use_nodes"`
	UsePersistentData bool            `json:"use_persistent_data" yaml:"use_persistent_data"`
	Devices           []ComputeDevice `json:"devices" yaml:"devices"`
	Nodes             []OutputNode    `json:"nodes" yaml:"nodes"`
}

// Clone returns a deep copy of the snapshot
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Devices = append([]ComputeDevice(nil), s.Devices...)
	c.Nodes = append([]OutputNode(nil), s.Nodes...)
	return &c
}
