package compositor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/psantana5/renderhook/pkg/host"
	"github.com/psantana5/renderhook/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalDir(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"C:\\out\\frame.png", "C:/out/"},
		{"/tmp/render/frame_####.exr", "/tmp/render/"},
		{"/tmp/render/", "/tmp/render/"},
		{"/tmp//render//frame", "/tmp//render/"},
		{"relative/dir/f", "relative/dir/"},
		{"frame.png", "/"},
		{"", "/"},
		{"/frame.png", "/"},
		{"//frame.png", "//"},
		{"\\\\server\\share\\f.png", "//server/share/"},
		{"mixed/path\\to/f", "mixed/path/to/"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalDir(tt.raw))
		})
	}
}

func TestCanonicalDirIdempotent(t *testing.T) {
	inputs := []string{
		"C:\\out\\frame.png", "/a/b/c", "/a/b/c/", "x", "", "/", "//", "///a", "a//b//", "\\\\unc\\share",
	}
	for _, in := range inputs {
		once := CanonicalDir(in)
		assert.Equal(t, once, CanonicalDir(once), "input %q", in)
	}
}

func TestResolveAndApply(t *testing.T) {
	snap := &models.Snapshot{
		Engine: "CYCLES",
		Nodes: []models.OutputNode{
			{ID: "1", Name: "Beauty", Kind: models.NodeKindFileOutput, BasePath: "/old/"},
			{ID: "2", Name: "Viewer", Kind: "CompositorNodeViewer", BasePath: "/keep/"},
			{ID: "3", Name: "Locked", Kind: models.NodeKindFileOutput, BasePath: "/locked/", ReadOnly: true},
			{ID: "4", Name: "Depth", Kind: models.NodeKindFileOutput},
		},
	}
	h := host.NewMemoryHost(snap)
	nodes, err := h.OutputNodes()
	require.NoError(t, err)

	result, err := NewResolver(h, nil).ResolveAndApply("D:\\renders\\shot\\frame_", false, nodes)
	require.NoError(t, err)
	assert.Equal(t, "D:/renders/shot/", result.Dir)
	assert.Len(t, result.Updated, 2)
	require.Len(t, result.Rejections, 1)
	assert.ErrorIs(t, result.Rejections[0], host.ErrRejected)

	want := snap.Clone()
	want.UseCompositing = true
	want.UseNodes = true
	want.Nodes[0].BasePath = "D:/renders/shot/"
	want.Nodes[3].BasePath = "D:/renders/shot/"
	if diff := cmp.Diff(want, h.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveAndApplyDisabled(t *testing.T) {
	snap := &models.Snapshot{
		Nodes: []models.OutputNode{{ID: "1", Kind: models.NodeKindFileOutput, BasePath: "/old/"}},
	}
	h := host.NewMemoryHost(snap)

	result, err := NewResolver(h, nil).ResolveAndApply("/new/f", true, snap.Nodes)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	if diff := cmp.Diff(snap, h.Snapshot()); diff != "" {
		t.Errorf("disabled step mutated host (-want +got):\n%s", diff)
	}
}

func TestResolveAndApplyCustomKind(t *testing.T) {
	h := host.NewMemoryHost(&models.Snapshot{
		Nodes: []models.OutputNode{
			{ID: "1", Kind: models.NodeKindFileOutput},
			{ID: "2", Kind: "CustomOutput"},
		},
	})
	nodes, _ := h.OutputNodes()

	r := NewResolver(h, nil)
	r.SetNodeKind("CustomOutput")
	result, err := r.ResolveAndApply("/out/x", false, nodes)
	require.NoError(t, err)
	require.Len(t, result.Updated, 1)
	assert.Equal(t, "2", result.Updated[0].ID)
}

func TestResolveAndApplyWithoutOutputPath(t *testing.T) {
	h := host.NewMemoryHost(&models.Snapshot{
		Nodes: []models.OutputNode{{ID: "1", Kind: models.NodeKindFileOutput, BasePath: "/keep/"}},
	})
	nodes, _ := h.OutputNodes()

	result, err := NewResolver(h, nil).ResolveAndApply("", false, nodes)
	assert.ErrorIs(t, err, ErrNoOutputPath)
	assert.Empty(t, result.Updated)

	got := h.Snapshot()
	assert.Equal(t, "/keep/", got.Nodes[0].BasePath)
	assert.False(t, got.UseCompositing)
}

func TestResolveAndApplySceneRejection(t *testing.T) {
	h := host.NewMemoryHost(&models.Snapshot{
		Nodes: []models.OutputNode{{ID: "1", Kind: models.NodeKindFileOutput}},
	})
	h.RejectScene = true
	nodes, _ := h.OutputNodes()

	_, err := NewResolver(h, nil).ResolveAndApply("/out/x", false, nodes)
	assert.ErrorIs(t, err, host.ErrRejected)
	assert.Empty(t, h.Snapshot().Nodes[0].BasePath)
}
