// Package prerender runs one configuration pass before a render job starts:
// device selection, compositor output paths, then persistent data.
package prerender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/psantana5/renderhook/pkg/compositor"
	"github.com/psantana5/renderhook/pkg/devices"
	"github.com/psantana5/renderhook/pkg/frames"
	"github.com/psantana5/renderhook/pkg/host"
	"github.com/psantana5/renderhook/pkg/logging"
	"github.com/psantana5/renderhook/pkg/metrics"
	"github.com/psantana5/renderhook/pkg/models"
	"github.com/psantana5/renderhook/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Step names
const (
	StepListing        = "listing"
	StepDevices        = "devices"
	StepCompositor     = "compositor"
	StepPersistentData = "persistent_data"
)

var stepDescriptions = map[string]string{
	StepListing:        "unable to read scene state",
	StepDevices:        "unable to change compute device settings",
	StepCompositor:     "could not enable compositing nodes",
	StepPersistentData: "could not enable persistent data mode",
}

// Report describes what a pass did
type Report struct {
	PassID  string `json:"pass_id" yaml:"pass_id"`
	Skipped bool   `json:"skipped" yaml:"skipped"`
	Engine  string `json:"engine,omitempty" yaml:"engine,omitempty"`

	Devices        *devices.Selection       `json:"devices,omitempty" yaml:"devices,omitempty"`
	Compositor     *compositor.ApplyResult  `json:"compositor,omitempty" yaml:"compositor,omitempty"`
	PersistentData bool                     `json:"persistent_data" yaml:"persistent_data"`
	Durations      map[string]time.Duration `json:"durations,omitempty" yaml:"durations,omitempty"`
}

// Pass runs resolution passes against a host
type Pass struct {
	cfg     Config
	logger  *logging.Logger
	metrics *metrics.Recorder
	tracer  *tracing.Provider
}

// Option configures a Pass
type Option func(*Pass)

// WithLogger sets the pass logger
func WithLogger(l *logging.Logger) Option {
	return func(p *Pass) { p.logger = l }
}

// WithMetrics records pass outcomes in r
func WithMetrics(r *metrics.Recorder) Option {
	return func(p *Pass) { p.metrics = r }
}

// WithTracer wraps the pass and each step in spans
func WithTracer(t *tracing.Provider) Option {
	return func(p *Pass) { p.tracer = t }
}

// NewPass creates a pass runner
func NewPass(cfg Config, opts ...Option) *Pass {
	p := &Pass{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.Discard()
	}
	if p.metrics == nil {
		p.metrics = metrics.NewRecorder()
	}
	if p.tracer == nil {
		p.tracer = tracing.Noop()
	}
	return p
}

// Run executes one pass. It returns a *PassError when any step failed;
// the report is returned either way.
func (p *Pass) Run(ctx context.Context, params models.JobParams, h host.Host) (*Report, error) {
	report := &Report{PassID: uuid.New().String(), Durations: make(map[string]time.Duration)}
	logger := p.logger.WithField("pass_id", report.PassID)

	if !params.Marked {
		logger.Debug("Marker flag absent, leaving scene untouched")
		report.Skipped = true
		p.metrics.ObservePass(metrics.OutcomeSkipped)
		return report, nil
	}

	ctx, span := p.tracer.StartSpan(ctx, "prerender.pass", attribute.String("pass.id", report.PassID))
	passErr := &PassError{PassID: report.PassID}
	defer func() {
		var err error
		if len(passErr.Steps) > 0 {
			err = passErr
		}
		tracing.End(span, err)
	}()

	r := &run{pass: p, ctx: ctx, logger: logger, report: report, errs: passErr}

	var devs []models.ComputeDevice
	var nodes []models.OutputNode
	if !r.step(StepListing, func(context.Context) ([]error, error) {
		var err error
		if report.Engine, err = h.Engine(); err != nil {
			return nil, fmt.Errorf("failed to read engine: %w", err)
		}
		if devs, err = h.Devices(); err != nil {
			return nil, fmt.Errorf("failed to list devices: %w", err)
		}
		if nodes, err = h.OutputNodes(); err != nil {
			return nil, fmt.Errorf("failed to list output nodes: %w", err)
		}
		return nil, nil
	}) {
		return p.finish(report, passErr)
	}
	span.SetAttributes(attribute.String("render.engine", report.Engine))

	if !r.step(StepDevices, func(ctx context.Context) ([]error, error) {
		req := devices.Request{
			RequestedKind:     params.DeviceType,
			EngineSupportsGPU: p.cfg.SupportsGPU(report.Engine),
		}
		sel, err := devices.NewSelector(h, logger).Select(devs, req)
		report.Devices = sel
		if err != nil {
			return nil, err
		}
		for _, a := range sel.Assignments {
			tracing.AddEvent(ctx, "device.assigned",
				attribute.String("device.id", a.Device.ID),
				attribute.String("device.kind", string(a.Device.Kind)),
				attribute.Bool("device.enabled", a.Enable),
			)
		}
		p.metrics.SetDevices(sel.Enabled(), sel.FellBack)
		return sel.Rejections, nil
	}) {
		return p.finish(report, passErr)
	}

	if !r.step(StepCompositor, func(context.Context) ([]error, error) {
		resolver := compositor.NewResolver(h, logger)
		resolver.SetNodeKind(p.cfg.NodeKind)
		raw := params.RenderOutput
		if !params.HasRenderOutput {
			raw = ""
		}
		result, err := resolver.ResolveAndApply(raw, params.DisableCompositing, nodes)
		report.Compositor = result
		if err != nil {
			return nil, err
		}
		p.metrics.SetNodesUpdated(len(result.Updated))
		return result.Rejections, nil
	}) {
		return p.finish(report, passErr)
	}

	r.step(StepPersistentData, func(context.Context) ([]error, error) {
		enable, err := frames.ShouldEnablePersistentData(
			p.cfg.SupportsPersistentData(report.Engine),
			params.RenderFrames,
			params.HasRenderFrames,
			params.DisablePersistentData,
		)
		if err != nil {
			return nil, err
		}
		if enable {
			if err := h.SetPersistentData(true); err != nil {
				return nil, fmt.Errorf("failed to enable persistent data: %w", err)
			}
			logger.Info("Enabled persistent data", logging.Fields{"frames": params.RenderFrames})
		}
		report.PersistentData = enable
		p.metrics.SetPersistentData(enable)
		return nil, nil
	})

	return p.finish(report, passErr)
}

func (p *Pass) finish(report *Report, passErr *PassError) (*Report, error) {
	if len(passErr.Steps) > 0 {
		p.metrics.ObservePass(metrics.OutcomeFailed)
		return report, passErr
	}
	p.metrics.ObservePass(metrics.OutcomeOK)
	return report, nil
}

// run carries per-pass state through the steps
type run struct {
	pass   *Pass
	ctx    context.Context
	logger *logging.Logger
	report *Report
	errs   *PassError
}

// step runs fn inside a span. fn returns non-fatal rejections and a fatal
// error. step reports whether the pass should continue.
func (r *run) step(name string, fn func(ctx context.Context) ([]error, error)) bool {
	ctx, span := r.pass.tracer.StartSpan(r.ctx, "prerender."+name)
	start := time.Now()

	rejections, err := fn(ctx)

	elapsed := time.Since(start)
	r.report.Durations[name] = elapsed
	r.pass.metrics.ObserveRejections(rejections)

	stepErr := err
	if stepErr == nil && len(rejections) > 0 {
		stepErr = errors.Join(rejections...)
	}
	r.pass.metrics.ObserveStep(name, elapsed, stepErr)
	tracing.End(span, stepErr)

	if stepErr == nil {
		return true
	}

	fatal := err != nil
	r.logger.Error("Unhandled failure: "+stepDescriptions[name], logging.Fields{
		"step":  name,
		"fatal": fatal,
		"error": stepErr.Error(),
	})
	r.errs.Steps = append(r.errs.Steps, &StepError{Step: name, Fatal: fatal, Err: stepErr})
	return !fatal
}
