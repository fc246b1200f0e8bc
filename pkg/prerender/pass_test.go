package prerender

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/psantana5/renderhook/pkg/compositor"
	"github.com/psantana5/renderhook/pkg/frames"
	"github.com/psantana5/renderhook/pkg/host"
	"github.com/psantana5/renderhook/pkg/jobargs"
	"github.com/psantana5/renderhook/pkg/logging"
	"github.com/psantana5/renderhook/pkg/metrics"
	"github.com/psantana5/renderhook/pkg/models"
	"github.com/psantana5/renderhook/pkg/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// countingHost counts every call that reaches the host
type countingHost struct {
	*host.MemoryHost
	calls int
}

func (c *countingHost) Engine() (string, error) {
	c.calls++
	return c.MemoryHost.Engine()
}

func (c *countingHost) Devices() ([]models.ComputeDevice, error) {
	c.calls++
	return c.MemoryHost.Devices()
}

func (c *countingHost) OutputNodes() ([]models.OutputNode, error) {
	c.calls++
	return c.MemoryHost.OutputNodes()
}

type failingLister struct {
	*host.MemoryHost
}

func (failingLister) Devices() ([]models.ComputeDevice, error) {
	return nil, errors.New("preferences unavailable")
}

func sceneSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Engine:     "CYCLES",
		DeviceMode: models.DeviceModeCPU,
		Devices: []models.ComputeDevice{
			{ID: "cpu", Name: "Threadripper", Kind: models.DeviceKindCPU},
			{ID: "cuda", Name: "RTX A6000", Kind: models.DeviceKindCUDA, Enabled: true},
			{ID: "optix", Name: "RTX A6000", Kind: models.DeviceKindOptiX},
		},
		Nodes: []models.OutputNode{
			{ID: "out", Name: "File Output", Kind: models.NodeKindFileOutput, BasePath: "/tmp/"},
			{ID: "comp", Name: "Composite", Kind: "CompositorNodeComposite"},
		},
	}
}

func markedParams() models.JobParams {
	return models.JobParams{
		DeviceType:      "OPTIX",
		RenderOutput:    "C:\\renders\\shot010\\frame_######",
		RenderFrames:    "1..100",
		HasRenderOutput: true,
		HasRenderFrames: true,
		Marked:          true,
	}
}

func TestRunFullPass(t *testing.T) {
	h := host.NewMemoryHost(sceneSnapshot())
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.INFO, false)
	logger.SetOutput(&buf)

	report, err := NewPass(DefaultConfig(), WithLogger(logger)).Run(context.Background(), markedParams(), h)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.NotEmpty(t, report.PassID)
	assert.True(t, report.PersistentData)

	want := sceneSnapshot()
	want.DeviceMode = models.DeviceModeGPU
	want.ComputeDeviceType = models.DeviceKindOptiX
	want.Devices[0].Enabled = true
	want.Devices[1].Enabled = false
	want.Devices[2].Enabled = true
	want.UseCompositing = true
	want.UseNodes = true
	want.UsePersistentData = true
	want.Nodes[0].BasePath = "C:/renders/shot010/"
	if diff := cmp.Diff(want, h.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	assert.Contains(t, buf.String(), "pass_id="+report.PassID)
}

func TestRunWithoutMarkerTouchesNothing(t *testing.T) {
	h := &countingHost{MemoryHost: host.NewMemoryHost(sceneSnapshot())}
	params := markedParams()
	params.Marked = false

	rec := metrics.NewRecorder()
	report, err := NewPass(DefaultConfig(), WithMetrics(rec)).Run(context.Background(), params, h)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Zero(t, h.calls)
	if diff := cmp.Diff(sceneSnapshot(), h.Snapshot()); diff != "" {
		t.Errorf("scene mutated (-want +got):\n%s", diff)
	}

	var out bytes.Buffer
	require.NoError(t, rec.WriteText(&out))
	assert.Contains(t, out.String(), `renderhook_passes_total{outcome="skipped"} 1`)
}

func TestRunUnsupportedEngine(t *testing.T) {
	snap := sceneSnapshot()
	snap.Engine = "BLENDER_EEVEE"
	h := host.NewMemoryHost(snap)

	report, err := NewPass(DefaultConfig()).Run(context.Background(), markedParams(), h)
	require.NoError(t, err)
	assert.True(t, report.Devices.Skip)
	assert.False(t, report.PersistentData)

	got := h.Snapshot()
	assert.Equal(t, models.DeviceModeCPU, got.DeviceMode)
	assert.False(t, got.UsePersistentData)
	assert.Equal(t, "C:/renders/shot010/", got.Nodes[0].BasePath)
}

func TestRunConfiguredEngines(t *testing.T) {
	snap := sceneSnapshot()
	snap.Engine = "OCTANE"
	h := host.NewMemoryHost(snap)

	cfg := DefaultConfig()
	cfg.GPUEngines = append(cfg.GPUEngines, "OCTANE")

	report, err := NewPass(cfg).Run(context.Background(), markedParams(), h)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceKindOptiX, report.Devices.EffectiveKind)
	assert.False(t, report.PersistentData)
}

func TestRunCollectsRejectionsAndContinues(t *testing.T) {
	snap := sceneSnapshot()
	snap.Devices[0].Locked = true
	snap.Nodes = append(snap.Nodes,
		models.OutputNode{ID: "ro", Name: "Locked", Kind: models.NodeKindFileOutput, ReadOnly: true},
		models.OutputNode{ID: "late", Name: "Late", Kind: models.NodeKindFileOutput},
	)
	h := host.NewMemoryHost(snap)

	rec := metrics.NewRecorder()
	report, err := NewPass(DefaultConfig(), WithMetrics(rec)).Run(context.Background(), markedParams(), h)
	require.Error(t, err)

	var passErr *PassError
	require.True(t, errors.As(err, &passErr))
	assert.False(t, passErr.Fatal())
	require.Len(t, passErr.Steps, 2)
	assert.Equal(t, StepDevices, passErr.Steps[0].Step)
	assert.Equal(t, StepCompositor, passErr.Steps[1].Step)
	assert.ErrorIs(t, err, host.ErrRejected)

	got := h.Snapshot()
	assert.True(t, got.Devices[2].Enabled, "later devices still processed")
	assert.Equal(t, "C:/renders/shot010/", got.Nodes[3].BasePath, "later nodes still processed")
	assert.True(t, got.UsePersistentData, "persistent data step still ran")
	assert.True(t, report.PersistentData)

	var out bytes.Buffer
	require.NoError(t, rec.WriteText(&out))
	assert.Contains(t, out.String(), `renderhook_host_rejections_total{target="device"} 1`)
	assert.Contains(t, out.String(), `renderhook_host_rejections_total{target="node"} 1`)
	assert.Contains(t, out.String(), `renderhook_passes_total{outcome="failed"} 1`)
}

func TestRunParseErrorIsFatal(t *testing.T) {
	h := host.NewMemoryHost(sceneSnapshot())
	params := markedParams()
	params.RenderFrames = "start..end"

	var buf bytes.Buffer
	logger := logging.NewLogger(logging.INFO, false)
	logger.SetOutput(&buf)

	report, err := NewPass(DefaultConfig(), WithLogger(logger)).Run(context.Background(), params, h)
	require.Error(t, err)

	var perr *frames.ParseError
	assert.True(t, errors.As(err, &perr))
	var passErr *PassError
	require.True(t, errors.As(err, &passErr))
	assert.True(t, passErr.Fatal())
	assert.False(t, report.PersistentData)

	assert.Equal(t, models.DeviceModeGPU, h.Snapshot().DeviceMode, "earlier steps are not rolled back")
	assert.Contains(t, buf.String(), "Unhandled failure: could not enable persistent data mode")
}

func TestRunWithoutRenderOutputIsFatal(t *testing.T) {
	h := host.NewMemoryHost(sceneSnapshot())
	params, err := jobargs.Parse([]string{"blender", "-b", "x.blend", "--", "--custom-script", "--device-type", "OPTIX"})
	require.NoError(t, err)

	report, err := NewPass(DefaultConfig()).Run(context.Background(), params, h)
	require.Error(t, err)
	assert.ErrorIs(t, err, compositor.ErrNoOutputPath)

	var passErr *PassError
	require.True(t, errors.As(err, &passErr))
	assert.True(t, passErr.Fatal())
	assert.Equal(t, StepCompositor, passErr.Steps[len(passErr.Steps)-1].Step)
	assert.False(t, report.PersistentData, "pass stops before persistent data")

	got := h.Snapshot()
	assert.Equal(t, "/tmp/", got.Nodes[0].BasePath)
	assert.False(t, got.UseCompositing)
}

func TestRunWithoutRenderOutputCompositingDisabled(t *testing.T) {
	h := host.NewMemoryHost(sceneSnapshot())
	params := markedParams()
	params.RenderOutput, params.HasRenderOutput = "", false
	params.DisableCompositing = true

	report, err := NewPass(DefaultConfig()).Run(context.Background(), params, h)
	require.NoError(t, err)
	assert.True(t, report.Compositor.Skipped)
	assert.Equal(t, "/tmp/", h.Snapshot().Nodes[0].BasePath)
}

func TestRunSceneRejectionStopsPass(t *testing.T) {
	h := host.NewMemoryHost(sceneSnapshot())
	h.RejectScene = true

	report, err := NewPass(DefaultConfig()).Run(context.Background(), markedParams(), h)
	require.Error(t, err)

	var passErr *PassError
	require.True(t, errors.As(err, &passErr))
	require.Len(t, passErr.Steps, 1)
	assert.Equal(t, StepDevices, passErr.Steps[0].Step)
	assert.Nil(t, report.Compositor, "compositor step must not run")
	assert.Equal(t, "/tmp/", h.Snapshot().Nodes[0].BasePath)
}

func TestRunListingFailure(t *testing.T) {
	h := failingLister{MemoryHost: host.NewMemoryHost(sceneSnapshot())}

	_, err := NewPass(DefaultConfig()).Run(context.Background(), markedParams(), h)
	require.Error(t, err)

	var passErr *PassError
	require.True(t, errors.As(err, &passErr))
	assert.Equal(t, StepListing, passErr.Steps[0].Step)
	assert.Equal(t, models.DeviceModeCPU, h.Snapshot().DeviceMode)
}

func TestRunSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := tracing.NewProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)), "test")

	_, err := NewPass(DefaultConfig(), WithTracer(tp)).Run(context.Background(), markedParams(), host.NewMemoryHost(sceneSnapshot()))
	require.NoError(t, err)

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{
		"prerender.listing",
		"prerender.devices",
		"prerender.compositor",
		"prerender.persistent_data",
		"prerender.pass",
	}, names)

	devicesSpan := rec.Ended()[1]
	var enabled []string
	for _, ev := range devicesSpan.Events() {
		require.Equal(t, "device.assigned", ev.Name)
		var id string
		var on bool
		for _, kv := range ev.Attributes {
			switch kv.Key {
			case "device.id":
				id = kv.Value.AsString()
			case "device.enabled":
				on = kv.Value.AsBool()
			}
		}
		if on {
			enabled = append(enabled, id)
		}
	}
	assert.Len(t, devicesSpan.Events(), 3)
	assert.Equal(t, []string{"cpu", "optix"}, enabled)
}

func TestStepMetricsRecorded(t *testing.T) {
	rec := metrics.NewRecorder()
	_, err := NewPass(DefaultConfig(), WithMetrics(rec)).Run(context.Background(), markedParams(), host.NewMemoryHost(sceneSnapshot()))
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(rec.Registry(), "renderhook_step_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
