package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/sciencecorp/synapse-cereplex-driver/device"
	"github.com/sciencecorp/synapse-cereplex-driver/driver"
	"github.com/sciencecorp/synapse-cereplex-driver/errors"
	"github.com/sciencecorp/synapse-cereplex-driver/health"
	"github.com/sciencecorp/synapse-cereplex-driver/metric"
)

// DefaultMaxRequestSize bounds a Configure body.
const DefaultMaxRequestSize = 1 << 20

// Controller is the device surface the control plane drives.
type Controller interface {
	Info() device.Snapshot
	Configure(ctx context.Context, cfg device.Configuration) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status(err error) device.Status
	Health() health.Status
}

// InfoResponse is the body of GET /v1/info.
type InfoResponse struct {
	device.Identity
	SynapseVersion string               `json:"synapse_version"`
	Status         device.Status        `json:"status"`
	Peripherals    []driver.Peripheral  `json:"peripherals"`
	Configuration  device.Configuration `json:"configuration"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger.With("component", "api")
		}
	}
}

// WithMetrics records control request counts and latency.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Server) {
		if registry != nil {
			s.metrics = registry.CoreMetrics()
		}
	}
}

// WithMaxRequestSize overrides DefaultMaxRequestSize.
func WithMaxRequestSize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxRequestSize = n
		}
	}
}

// Server is the HTTP/JSON control plane.
type Server struct {
	addr           string
	ctrl           Controller
	schema         *gojsonschema.Schema
	logger         *slog.Logger
	metrics        *metric.Metrics
	maxRequestSize int64

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a control plane server for ctrl listening on addr.
func NewServer(addr string, ctrl Controller, opts ...Option) (*Server, error) {
	if ctrl == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Server", "NewServer", "controller validation")
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(configurationSchema))
	if err != nil {
		return nil, errors.WrapFatal(err, "Server", "NewServer", "configuration schema compile")
	}

	s := &Server{
		addr:           addr,
		ctrl:           ctrl,
		schema:         schema,
		logger:         slog.Default().With("component", "api"),
		maxRequestSize: DefaultMaxRequestSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the control plane routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/info", s.handleInfo)
	mux.HandleFunc("POST /v1/configure", s.handleConfigure)
	mux.HandleFunc("POST /v1/start", s.handleStart)
	mux.HandleFunc("POST /v1/stop", s.handleStop)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.withRequestID(mux)
}

// Start binds the listen address and serves until Shutdown. It returns once
// the listener is bound; serve errors are logged.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "server state check")
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.WrapFatal(err, "Server", "Start", fmt.Sprintf("listen on %s", s.addr))
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.server = srv
	s.listener = ln

	go func() {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Control plane stopped", "error", err)
		}
	}()
	s.logger.Info("Control plane listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Server", "Shutdown", "http shutdown")
	}
	return nil
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snap := s.ctrl.Info()
	resp := InfoResponse{
		Identity:       snap.Identity,
		SynapseVersion: snap.SynapseVersion,
		Status: device.Status{
			Code:    errors.CodeOK,
			Sockets: snap.Sockets,
			State:   snap.State,
		},
		Peripherals:   snap.Peripherals,
		Configuration: snap.Configuration,
	}
	s.writeJSON(w, http.StatusOK, resp)
	s.record(r, "info", errors.CodeOK, start)
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	cfg, err := s.decodeConfiguration(r)
	if err == nil {
		err = s.ctrl.Configure(r.Context(), cfg)
	}
	s.respond(w, r, "configure", err, start)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.respond(w, r, "start", s.ctrl.Start(r.Context()), start)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.respond(w, r, "stop", s.ctrl.Stop(r.Context()), start)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.ctrl.Health()
	code := http.StatusOK
	if st.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, st)
}

// decodeConfiguration reads, schema-validates and decodes a request body.
func (s *Server) decodeConfiguration(r *http.Request) (device.Configuration, error) {
	var cfg device.Configuration

	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxRequestSize+1))
	if err != nil {
		return cfg, errors.Invalidf("read request body: %v", err)
	}
	if int64(len(body)) > s.maxRequestSize {
		return cfg, errors.Invalidf("request body exceeds maximum size of %d bytes", s.maxRequestSize)
	}

	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return cfg, errors.Invalidf("malformed configuration: %v", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return cfg, errors.Invalidf("invalid configuration: %s", strings.Join(msgs, "; "))
	}

	if err := json.Unmarshal(body, &cfg); err != nil {
		return cfg, errors.Invalidf("decode configuration: %v", err)
	}
	return cfg, nil
}

// respond writes the controller status for an operation result.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, op string, err error, start time.Time) {
	st := s.ctrl.Status(err)
	if err != nil {
		s.logger.Warn("Control request failed",
			"operation", op, "code", st.Code.String(), "request_id", requestID(r), "error", err)
	}
	s.writeJSON(w, httpStatus(st.Code), st)
	s.record(r, op, st.Code, start)
}

func (s *Server) record(r *http.Request, op string, code errors.Code, start time.Time) {
	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordControlRequest(op, code.String(), elapsed)
	}
	s.logger.Debug("Control request", "operation", op, "code", code.String(),
		"request_id", requestID(r), "duration", elapsed)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Response encoding failed", "error", err)
		http.Error(w, `{"code":"undefined_error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}

// httpStatus maps a status code to an HTTP status.
func httpStatus(code errors.Code) int {
	switch code {
	case errors.CodeOK:
		return http.StatusOK
	case errors.CodeValidationError:
		return http.StatusBadRequest
	case errors.CodeInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

const requestIDHeader = "X-Request-ID"

// withRequestID propagates or assigns a request id.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func requestID(r *http.Request) string {
	return r.Header.Get(requestIDHeader)
}
