// Package jobargs extracts render job parameters from the host process argv.
//
// The host passes its own flags alongside the job flags, usually separated
// by "--". Only the job flags are recognized; everything else is ignored.
package jobargs

import (
	"fmt"
	"io"
	"strings"

	"github.com/psantana5/renderhook/pkg/models"
	"github.com/spf13/pflag"
)

// DefaultMarker is the flag that tells the hook a job was launched by the farm
const DefaultMarker = "--custom-script"

const (
	FlagDeviceType            = "device-type"
	FlagDisableCompositing    = "disable-compositing"
	FlagDisablePersistentData = "disable-persistent-data"
	FlagRenderOutput          = "render-output"
	FlagRenderFrames          = "render-frames"
)

// aliases maps alternate spellings onto canonical flag names
var aliases = map[string]string{
	"render-frame": FlagRenderFrames,
}

// Parser parses job arguments
type Parser struct {
	// Marker is the exact argv token that gates the pass
	Marker string
}

// Parse parses argv with the default marker flag
func Parse(argv []string) (models.JobParams, error) {
	return Parser{Marker: DefaultMarker}.Parse(argv)
}

func newFlagSet(params *models.JobParams) *pflag.FlagSet {
	fs := pflag.NewFlagSet("job", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if canonical, ok := aliases[name]; ok {
			return pflag.NormalizedName(canonical)
		}
		return pflag.NormalizedName(name)
	})

	fs.StringVar(&params.DeviceType, FlagDeviceType, "", "compute device kind (CPU, CUDA, OPTIX, HIP, ONEAPI or FIRST)")
	fs.BoolVar(&params.DisableCompositing, FlagDisableCompositing, false, "leave compositor output paths untouched")
	fs.BoolVar(&params.DisablePersistentData, FlagDisablePersistentData, false, "never enable persistent data")
	fs.StringVar(&params.RenderOutput, FlagRenderOutput, "", "render output path")
	fs.StringVar(&params.RenderFrames, FlagRenderFrames, "", "frame or start..end range")
	return fs
}

// Parse extracts JobParams from the full host argv. Flags are found on
// either side of "--"; unknown flags, positional arguments and separators
// are skipped.
func (p Parser) Parse(argv []string) (models.JobParams, error) {
	var params models.JobParams
	fs := newFlagSet(&params)

	if err := fs.Parse(known(fs, argv)); err != nil {
		return params, fmt.Errorf("failed to parse job arguments: %w", err)
	}

	params.HasRenderOutput = fs.Changed(FlagRenderOutput)
	params.HasRenderFrames = fs.Changed(FlagRenderFrames)
	for _, arg := range argv {
		if arg == p.Marker {
			params.Marked = true
			break
		}
	}
	return params, nil
}

// known keeps the long flags fs defines along with their values
func known(fs *pflag.FlagSet, argv []string) []string {
	var kept []string
	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		if arg == "--" || !strings.HasPrefix(arg, "--") {
			continue
		}

		name, hasValue := strings.TrimPrefix(arg, "--"), false
		if eq := strings.Index(name, "="); eq >= 0 {
			name, hasValue = name[:eq], true
		}
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}

		kept = append(kept, arg)
		if !hasValue && flag.NoOptDefVal == "" && i+1 < len(argv) {
			kept = append(kept, argv[i+1])
			i++
		}
	}
	return kept
}
