// Package bridge serves a snapshot-backed host over HTTP so a render host
// plugin, or a remote resolve, can drive the same state.
package bridge

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/psantana5/renderhook/pkg/host"
	"github.com/psantana5/renderhook/pkg/jobargs"
	"github.com/psantana5/renderhook/pkg/logging"
	"github.com/psantana5/renderhook/pkg/metrics"
	"github.com/psantana5/renderhook/pkg/models"
	"github.com/psantana5/renderhook/pkg/prerender"
	"github.com/psantana5/renderhook/pkg/tracing"
)

// Options configures a Server
type Options struct {
	APIKey string
	// TLS switches the listener to HTTPS when set
	TLS *tls.Config

	// RateLimit is requests per second per client; zero disables limiting
	RateLimit float64
	Burst     int

	Pass    prerender.Config
	Logger  *logging.Logger
	Metrics *metrics.Recorder
	Tracer  *tracing.Provider
}

// Server exposes a MemoryHost over HTTP
type Server struct {
	host    *host.MemoryHost
	opts    Options
	logger  *logging.Logger
	metrics *metrics.Recorder
	tracer  *tracing.Provider
	limiter *Limiter
	router  *mux.Router
	started time.Time
}

// NewServer creates a bridge server over h
func NewServer(h *host.MemoryHost, opts Options) *Server {
	s := &Server{
		host:    h,
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		router:  mux.NewRouter().UseEncodedPath(),
		started: time.Now(),
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	s.logger = s.logger.WithField("component", "bridge")
	if s.metrics == nil {
		s.metrics = metrics.NewRecorder()
	}
	if s.tracer == nil {
		s.tracer = tracing.Noop()
	}
	if s.opts.Pass.Marker == "" {
		s.opts.Pass = prerender.DefaultConfig()
	}

	s.router.Use(s.metrics.Middleware)
	s.router.Use(tracing.HTTPMiddleware(s.tracer))
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RateLimit) + 1
		}
		s.limiter = NewLimiter(opts.RateLimit, burst)
		s.router.Use(s.limiter.Middleware(ClientKey))
	}
	if opts.APIKey != "" {
		s.router.Use(apiKeyMiddleware(opts.APIKey))
	}
	s.RegisterRoutes(s.router)
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Limiter returns the rate limiter, or nil when limiting is off
func (s *Server) Limiter() *Limiter {
	return s.limiter
}

// RegisterRoutes registers all bridge routes
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/snapshot", s.GetSnapshot).Methods("GET")
	r.HandleFunc("/devices", s.ListDevices).Methods("GET")
	r.HandleFunc("/devices/{id}/enabled", s.SetDeviceEnabled).Methods("PUT")
	r.HandleFunc("/nodes", s.ListNodes).Methods("GET")
	r.HandleFunc("/nodes/{id}/base-path", s.SetBasePath).Methods("PUT")
	r.HandleFunc("/scene/compute-device-type", s.SetComputeDeviceType).Methods("PUT")
	r.HandleFunc("/scene/gpu", s.UseGPU).Methods("POST")
	r.HandleFunc("/scene/compositing", s.EnableCompositing).Methods("POST")
	r.HandleFunc("/scene/persistent-data", s.SetPersistentData).Methods("PUT")
	r.HandleFunc("/passes", s.RunPass).Methods("POST")
	r.HandleFunc("/health", s.Health).Methods("GET")
	r.Handle("/metrics", s.metrics.Handler()).Methods("GET")
}

// GetSnapshot returns the full host state
func (s *Server) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.host.Snapshot())
}

// ListDevices returns devices in detection order
func (s *Server) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, _ := s.host.Devices()
	if devices == nil {
		devices = []models.ComputeDevice{}
	}
	writeJSON(w, http.StatusOK, devices)
}

// ListNodes returns every compositor node
func (s *Server) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, _ := s.host.OutputNodes()
	if nodes == nil {
		nodes = []models.OutputNode{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

// SetDeviceEnabled toggles one device
func (s *Server) SetDeviceEnabled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"enabled\": bool}")
		return
	}
	s.respond(w, s.host.SetDeviceEnabled(pathID(r), *req.Enabled))
}

// SetBasePath assigns the output directory of one node
func (s *Server) SetBasePath(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BasePath *string `json:"base_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BasePath == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"base_path\": string}")
		return
	}
	s.respond(w, s.host.SetBasePath(pathID(r), *req.BasePath))
}

// SetComputeDeviceType records the preferred accelerator backend
func (s *Server) SetComputeDeviceType(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind models.DeviceKind `json:"compute_device_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.respond(w, s.host.SetComputeDeviceType(req.Kind))
}

// UseGPU switches the scene to GPU rendering
func (s *Server) UseGPU(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.host.UseGPU())
}

// EnableCompositing turns on compositing and node usage
func (s *Server) EnableCompositing(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.host.EnableCompositing())
}

// SetPersistentData toggles persistent data
func (s *Server) SetPersistentData(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"enabled\": bool}")
		return
	}
	s.respond(w, s.host.SetPersistentData(*req.Enabled))
}

// RunPass parses the posted host argv and runs a pass against the served
// state. A failed pass answers 422 with the report and the error.
func (s *Server) RunPass(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Argv []string `json:"argv"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "body must be {\"argv\": [string]}")
		return
	}

	params, err := jobargs.Parser{Marker: s.opts.Pass.Marker}.Parse(req.Argv)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pass := prerender.NewPass(s.opts.Pass,
		prerender.WithLogger(s.logger),
		prerender.WithMetrics(s.metrics),
		prerender.WithTracer(s.tracer),
	)
	report, err := pass.Run(r.Context(), params, s.host)

	resp := struct {
		Report *prerender.Report `json:"report"`
		Error  string            `json:"error,omitempty"`
	}{Report: report}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// Health reports liveness
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

// respond maps host errors onto HTTP status codes
func (s *Server) respond(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, host.ErrRejected):
		s.logger.Warn("Host rejected change", logging.Fields{"error": err.Error()})
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, host.ErrDeviceNotFound), errors.Is(err, host.ErrNodeNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("Host call failed", logging.Fields{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         s.opts.TLS,
	}

	if s.limiter != nil {
		go s.cleanupLimiter(ctx, time.Minute)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Bridge listening", logging.Fields{"addr": addr, "tls": srv.TLSConfig != nil})
		if srv.TLSConfig != nil {
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Stopping bridge")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) cleanupLimiter(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Cleanup(10 * every); n > 0 {
				s.logger.Debug("Dropped idle rate limiters", logging.Fields{"count": n})
			}
		}
	}
}

// pathID returns the decoded {id} route variable. Host IDs may contain
// slashes, so routes match on the encoded path.
func pathID(r *http.Request) string {
	id := mux.Vars(r)["id"]
	if decoded, err := url.PathUnescape(id); err == nil {
		return decoded
	}
	return id
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
