package models

// JobParams holds the job arguments the render farm passed to the host
// process. It is built once per invocation and handed to the pass explicitly.
type JobParams struct {
	DeviceType            string `json:"device_type,omitempty" yaml:"device_type,omitempty"`
	DisableCompositing    bool   `json:"disable_compositing" yaml:"disable_compositing"`
	DisablePersistentData bool   `json:"disable_persistent_data" yaml:"disable_persistent_data"`
	RenderOutput          string `json:"render_output,omitempty" yaml:"render_output,omitempty"`
	RenderFrames          string `json:"render_frames,omitempty" yaml:"render_frames,omitempty"`

	// HasRenderOutput is false when the output path argument was not passed
	HasRenderOutput bool `json:"has_render_output" yaml:"has_render_output"`

	// HasRenderFrames distinguishes an absent frame argument from an empty one
	HasRenderFrames bool `json:"has_render_frames" yaml:"has_render_frames"`

	// Marked is true when the marker flag was present in the full argv
	Marked bool `json:"marked" yaml:"marked"`
}
