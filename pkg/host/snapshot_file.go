package host

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/psantana5/renderhook/pkg/models"
	"gopkg.in/yaml.v3"
)

// LoadSnapshot reads a snapshot from a YAML or JSON file. The format is
// picked from the extension; anything other than .json is read as YAML.
func LoadSnapshot(path string) (*models.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}

	var snap models.Snapshot
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &snap)
	} else {
		err = yaml.Unmarshal(data, &snap)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	if snap.DeviceMode == "" {
		snap.DeviceMode = models.DeviceModeCPU
	}
	return &snap, nil
}

// WriteSnapshot encodes snap to w as "json" or "yaml"
func WriteSnapshot(w io.Writer, snap *models.Snapshot, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(snap)
	case "yaml", "":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(snap); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unsupported snapshot format %q", format)
	}
}

// SaveSnapshot writes snap to path, choosing the format from the extension
func SaveSnapshot(path string, snap *models.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	return WriteSnapshot(f, snap, format)
}
