// Package shutdown runs cleanup hooks when the process is asked to stop.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/psantana5/renderhook/pkg/logging"
)

// Manager handles graceful shutdown
type Manager struct {
	mu      sync.Mutex
	funcs   []namedFunc
	timeout time.Duration
	logger  *logging.Logger
}

type namedFunc struct {
	name string
	fn   func(context.Context) error
}

// New creates a manager whose hooks share a timeout
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{timeout: timeout, logger: logger}
}

// Register adds a shutdown hook. Hooks run in reverse order (LIFO).
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append(m.funcs, namedFunc{name: name, fn: fn})
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM
func (m *Manager) SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		if parent.Err() == nil {
			m.logger.Info("Received shutdown signal")
		}
	}()
	return ctx, cancel
}

// Shutdown runs every hook and returns the first error
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var first error
	for i := len(m.funcs) - 1; i >= 0; i-- {
		f := m.funcs[i]
		if err := f.fn(ctx); err != nil {
			m.logger.Error("Shutdown hook failed", logging.Fields{"hook": f.name, "error": err.Error()})
			if first == nil {
				first = fmt.Errorf("%s: %w", f.name, err)
			}
			continue
		}
		m.logger.Debug("Shutdown hook done", logging.Fields{"hook": f.name})
	}
	m.funcs = nil
	return first
}

// CloseResource adapts an io.Closer into a hook
func CloseResource(closer interface{ Close() error }) func(context.Context) error {
	return func(context.Context) error {
		return closer.Close()
	}
}
