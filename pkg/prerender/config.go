package prerender

import (
	"github.com/psantana5/renderhook/pkg/jobargs"
	"github.com/psantana5/renderhook/pkg/models"
)

// DefaultEngine is the render engine that supports every optimization
const DefaultEngine = "CYCLES"

// Config controls which engines get which optimizations
type Config struct {
	GPUEngines            []string
	PersistentDataEngines []string

	// NodeKind selects compositor nodes whose base path is rewritten
	NodeKind string
	// Marker is the argv token that gates the pass
	Marker string
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() Config {
	return Config{
		GPUEngines:            []string{DefaultEngine},
		PersistentDataEngines: []string{DefaultEngine},
		NodeKind:              models.NodeKindFileOutput,
		Marker:                jobargs.DefaultMarker,
	}
}

// SupportsGPU reports whether engine can render on accelerators
func (c Config) SupportsGPU(engine string) bool {
	return contains(c.GPUEngines, engine)
}

// SupportsPersistentData reports whether engine can keep data between frames
func (c Config) SupportsPersistentData(engine string) bool {
	return contains(c.PersistentDataEngines, engine)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
