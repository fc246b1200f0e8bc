package models

// NodeKindFileOutput is the kind tag of compositor nodes that write render
// output to disk.
const NodeKindFileOutput = "CompositorNodeOutputFile"

// OutputNode is a compositor node owned by the host. Only BasePath is ever
// mutated, and only on nodes of the file-output kind.
type OutputNode struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Kind     string `json:"kind" yaml:"kind"`
	BasePath string `json:"base_path" yaml:"base_path"`
	// ReadOnly nodes reject base path assignment (simulates host rejection)
	ReadOnly bool `json:"read_only,omitempty" yaml:"read_only,omitempty"`
}
