// Package compositor canonicalizes render output paths and applies them to
// the file-output nodes of the compositor graph.
package compositor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/psantana5/renderhook/pkg/host"
	"github.com/psantana5/renderhook/pkg/logging"
	"github.com/psantana5/renderhook/pkg/models"
)

// ErrNoOutputPath is returned when compositing is enabled but the job
// carries no render output path
var ErrNoOutputPath = errors.New("no render output path")

// CanonicalDir converts a raw output path into the directory form written to
// output nodes: forward slashes, last component removed, one trailing slash.
func CanonicalDir(raw string) string {
	p := strings.ReplaceAll(raw, "\\", "/")

	i := strings.LastIndex(p, "/") + 1
	head := p[:i]
	if head != "" && strings.Trim(head, "/") != "" {
		head = strings.TrimRight(head, "/")
	}

	if !strings.HasSuffix(head, "/") {
		head += "/"
	}
	return head
}

// ApplyResult reports what ResolveAndApply did
type ApplyResult struct {
	// Skipped is true when the step was disabled for this job
	Skipped bool   `json:"skipped" yaml:"skipped"`
	Dir     string `json:"dir,omitempty" yaml:"dir,omitempty"`

	Updated    []models.OutputNode `json:"updated,omitempty" yaml:"updated,omitempty"`
	Rejections []error             `json:"-" yaml:"-"`
}

// Resolver applies canonical output directories through a NodeHost
type Resolver struct {
	host     host.NodeHost
	logger   *logging.Logger
	nodeKind string
}

// NewResolver creates a resolver that updates nodes of the file-output kind.
// A nil logger discards output.
func NewResolver(h host.NodeHost, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Resolver{
		host:     h,
		logger:   logger.WithField("component", "compositor"),
		nodeKind: models.NodeKindFileOutput,
	}
}

// SetNodeKind changes the kind tag used to select output nodes
func (r *Resolver) SetNodeKind(kind string) {
	if kind != "" {
		r.nodeKind = kind
	}
}

// ResolveAndApply canonicalizes rawPath and writes it to every matching
// node. Per-node rejections are collected and do not stop later nodes;
// a failure to enable compositing on the scene is returned as an error.
// An empty rawPath fails with ErrNoOutputPath before any host call.
func (r *Resolver) ResolveAndApply(rawPath string, disabled bool, nodes []models.OutputNode) (*ApplyResult, error) {
	if disabled {
		r.logger.Info("Compositor output paths left unchanged (disabled)")
		return &ApplyResult{Skipped: true}, nil
	}

	if rawPath == "" {
		return &ApplyResult{}, ErrNoOutputPath
	}

	result := &ApplyResult{Dir: CanonicalDir(rawPath)}
	if err := r.host.EnableCompositing(); err != nil {
		return result, fmt.Errorf("failed to enable compositing: %w", err)
	}

	for _, n := range nodes {
		if n.Kind != r.nodeKind {
			continue
		}
		if err := r.host.SetBasePath(n.ID, result.Dir); err != nil {
			r.logger.Warn("Host rejected output path", logging.Fields{
				"node":  n.Name,
				"error": err.Error(),
			})
			result.Rejections = append(result.Rejections, err)
			continue
		}
		r.logger.Info(fmt.Sprintf("Setting compositor node %s base path to %s", n.Name, result.Dir))
		n.BasePath = result.Dir
		result.Updated = append(result.Updated, n)
	}

	r.logger.Debug("Compositor output paths applied", logging.Fields{
		"dir":      result.Dir,
		"updated":  len(result.Updated),
		"rejected": len(result.Rejections),
	})
	return result, nil
}
