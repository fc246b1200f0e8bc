// Package devices decides which compute devices a render pass activates.
package devices

import (
	"errors"
	"fmt"

	"github.com/psantana5/renderhook/pkg/host"
	"github.com/psantana5/renderhook/pkg/logging"
	"github.com/psantana5/renderhook/pkg/models"
)

// Selection reasons
const (
	ReasonUnsupportedEngine = "render engine does not support GPU rendering"
	ReasonCPURequested      = "CPU rendering requested"
	ReasonRequestedKind     = "requested device kind"
	ReasonFirstAccelerator  = "first detected accelerator"
	ReasonNoAccelerator     = "no accelerator detected, using CPU only"
)

// Request describes what the job asked for. An empty RequestedKind means the
// argument was absent and is handled like an unrecognized value.
type Request struct {
	RequestedKind     string
	EngineSupportsGPU bool
}

// Assignment is the enabled state planned for one device
type Assignment struct {
	Device models.ComputeDevice `json:"device" yaml:"device"`
	Enable bool                 `json:"enable" yaml:"enable"`
}

// Plan is the host-independent outcome of device selection
type Plan struct {
	// Skip is true when nothing is toggled and GPU mode is left alone
	Skip   bool   `json:"skip" yaml:"skip"`
	Reason string `json:"reason" yaml:"reason"`

	// EffectiveKind is the accelerator kind that ends up enabled; empty when
	// the request fell back to first detected and no accelerator exists.
	EffectiveKind models.DeviceKind `json:"effective_kind,omitempty" yaml:"effective_kind,omitempty"`
	FellBack      bool              `json:"fell_back" yaml:"fell_back"`

	Assignments []Assignment `json:"assignments,omitempty" yaml:"assignments,omitempty"`
}

// Enabled returns the devices the plan enables, in host order
func (p Plan) Enabled() []models.ComputeDevice {
	var out []models.ComputeDevice
	for _, a := range p.Assignments {
		if a.Enable {
			out = append(out, a.Device)
		}
	}
	return out
}

// NewPlan computes the selection for devices listed in host order
func NewPlan(devices []models.ComputeDevice, req Request) Plan {
	if !req.EngineSupportsGPU {
		return Plan{Skip: true, Reason: ReasonUnsupportedEngine}
	}
	if req.RequestedKind == string(models.DeviceKindCPU) {
		return Plan{Skip: true, Reason: ReasonCPURequested}
	}

	plan := Plan{Reason: ReasonRequestedKind}
	requested := models.DeviceKind(req.RequestedKind)
	if req.RequestedKind == models.DeviceKindFirst || !requested.IsAccelerator() {
		plan.Reason = ReasonFirstAccelerator
		if first, ok := models.FirstAccelerator(devices); ok {
			plan.EffectiveKind = first.Kind
		} else {
			plan.FellBack = true
			plan.Reason = ReasonNoAccelerator
		}
	} else {
		plan.EffectiveKind = requested
	}

	plan.Assignments = make([]Assignment, 0, len(devices))
	for _, d := range devices {
		enable := d.Kind == models.DeviceKindCPU || (plan.EffectiveKind != "" && d.Kind == plan.EffectiveKind)
		plan.Assignments = append(plan.Assignments, Assignment{Device: d, Enable: enable})
	}
	return plan
}

// Selection is the result of applying a plan to the host
type Selection struct {
	Plan `yaml:",inline"`

	// Rejections holds per-device host refusals; the remaining devices
	// were still processed.
	Rejections []error `json:"-" yaml:"-"`
}

// Selector applies device plans through a DeviceHost
type Selector struct {
	host   host.DeviceHost
	logger *logging.Logger
}

// NewSelector creates a selector. A nil logger discards output.
func NewSelector(h host.DeviceHost, logger *logging.Logger) *Selector {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Selector{host: h, logger: logger.WithField("component", "devices")}
}

// Select plans and applies the device selection. Scene-level host failures
// are returned as an error; per-device rejections are collected in the
// selection.
func (s *Selector) Select(devices []models.ComputeDevice, req Request) (*Selection, error) {
	s.logger.Debug("Detected devices", logging.Fields{"count": len(devices)})
	for _, d := range devices {
		s.logger.Debug(fmt.Sprintf("Detected device %s (%s)", d.Name, d.Kind), logging.Fields{"device_id": d.ID})
	}

	plan := NewPlan(devices, req)
	sel := &Selection{Plan: plan}
	if plan.Skip {
		s.logger.Info("Device selection skipped: " + plan.Reason)
		return sel, nil
	}

	if plan.EffectiveKind != "" {
		if err := s.host.SetComputeDeviceType(plan.EffectiveKind); err != nil {
			return sel, fmt.Errorf("failed to set compute device type %s: %w", plan.EffectiveKind, err)
		}
	}
	if err := s.host.UseGPU(); err != nil {
		return sel, fmt.Errorf("failed to enable GPU mode: %w", err)
	}

	for _, a := range plan.Assignments {
		if err := s.host.SetDeviceEnabled(a.Device.ID, a.Enable); err != nil {
			s.logger.Warn("Host rejected device toggle", logging.Fields{
				"device": a.Device.Name,
				"kind":   a.Device.Kind,
				"error":  err.Error(),
			})
			sel.Rejections = append(sel.Rejections, err)
			continue
		}
		if a.Enable {
			s.logger.Info(fmt.Sprintf("Device %s will be used (%s)", a.Device.Name, a.Device.Kind))
		}
	}

	s.logger.Info("Device selection complete", logging.Fields{
		"requested": req.RequestedKind,
		"effective": string(plan.EffectiveKind),
		"reason":    plan.Reason,
		"enabled":   len(plan.Enabled()),
		"rejected":  len(sel.Rejections),
	})
	return sel, nil
}

// Err joins the per-device rejections, or returns nil
func (s *Selection) Err() error {
	return errors.Join(s.Rejections...)
}
