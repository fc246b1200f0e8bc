package host

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/psantana5/renderhook/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Engine:     "CYCLES",
		DeviceMode: models.DeviceModeCPU,
		Devices: []models.ComputeDevice{
			{ID: "cpu0", Name: "Ryzen 9", Kind: models.DeviceKindCPU},
			{ID: "gpu0", Name: "RTX 4090", Kind: models.DeviceKindCUDA},
			{ID: "gpu1", Name: "RTX 4090", Kind: models.DeviceKindOptiX, Locked: true},
		},
		Nodes: []models.OutputNode{
			{ID: "n1", Name: "File Output", Kind: models.NodeKindFileOutput, BasePath: "//tmp/"},
			{ID: "n2", Name: "Locked Output", Kind: models.NodeKindFileOutput, ReadOnly: true},
		},
	}
}

func TestMemoryHostDoesNotAliasInput(t *testing.T) {
	snap := testSnapshot()
	h := NewMemoryHost(snap)

	require.NoError(t, h.SetDeviceEnabled("gpu0", true))
	assert.False(t, snap.Devices[1].Enabled, "input snapshot must not change")

	devices, err := h.Devices()
	require.NoError(t, err)
	devices[0].Enabled = true
	assert.False(t, h.Snapshot().Devices[0].Enabled, "listing must be a copy")
}

func TestMemoryHostRejections(t *testing.T) {
	h := NewMemoryHost(testSnapshot())

	tests := []struct {
		name    string
		call    func() error
		wantErr error
		target  string
	}{
		{"locked device", func() error { return h.SetDeviceEnabled("gpu1", true) }, ErrRejected, "device"},
		{"missing device", func() error { return h.SetDeviceEnabled("nope", true) }, ErrDeviceNotFound, "device"},
		{"read-only node", func() error { return h.SetBasePath("n2", "/out/") }, ErrRejected, "node"},
		{"missing node", func() error { return h.SetBasePath("nope", "/out/") }, ErrNodeNotFound, "node"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr))

			var rej *RejectionError
			require.True(t, errors.As(err, &rej))
			assert.Equal(t, tt.target, rej.Target)
		})
	}
}

func TestMemoryHostSceneMutations(t *testing.T) {
	h := NewMemoryHost(testSnapshot())

	require.NoError(t, h.SetComputeDeviceType(models.DeviceKindCUDA))
	require.NoError(t, h.UseGPU())
	require.NoError(t, h.EnableCompositing())
	require.NoError(t, h.SetPersistentData(true))
	require.NoError(t, h.SetBasePath("n1", "/out/"))

	snap := h.Snapshot()
	assert.Equal(t, models.DeviceKindCUDA, snap.ComputeDeviceType)
	assert.Equal(t, models.DeviceModeGPU, snap.DeviceMode)
	assert.True(t, snap.UseCompositing)
	assert.True(t, snap.UseNodes)
	assert.True(t, snap.UsePersistentData)
	assert.Equal(t, "/out/", snap.Nodes[0].BasePath)

	h.RejectScene = true
	err := h.UseGPU()
	assert.ErrorIs(t, err, ErrRejected)
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"scene.yaml", "scene.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, SaveSnapshot(path, testSnapshot()))

			got, err := LoadSnapshot(path)
			require.NoError(t, err)
			assert.Equal(t, testSnapshot(), got)
		})
	}
}

func TestLoadSnapshotDefaultsDeviceMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: CYCLES\ndevices: []\nnodes: []\n"), 0o644))

	snap, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceModeCPU, snap.DeviceMode)
}

func TestLoadSnapshotErrors(t *testing.T) {
	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = LoadSnapshot(path)
	assert.Error(t, err)
}
