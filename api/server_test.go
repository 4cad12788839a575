package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciencecorp/synapse-cereplex-driver/device"
	"github.com/sciencecorp/synapse-cereplex-driver/driver/sim"
	"github.com/sciencecorp/synapse-cereplex-driver/errors"
	"github.com/sciencecorp/synapse-cereplex-driver/health"
	"github.com/sciencecorp/synapse-cereplex-driver/metric"
	"github.com/sciencecorp/synapse-cereplex-driver/transport"
)

type harness struct {
	url     string
	ctrl    *device.Controller
	metrics *metric.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	registry := metric.NewMetricsRegistry()
	ctrl, err := device.NewController(device.Identity{Name: "api-test", Serial: "SN-API"}, device.Deps{
		Provisioner: transport.NewProvisioner(transport.Config{}),
		Driver:      sim.New(sim.DefaultConfig()),
		Metrics:     registry.CoreMetrics(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Close() })

	srv, err := NewServer("127.0.0.1:0", ctrl, WithMetrics(registry))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &harness{url: ts.URL, ctrl: ctrl, metrics: registry.CoreMetrics()}
}

func post(t *testing.T, url, body string) (int, device.Status) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var st device.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	return resp.StatusCode, st
}

const streamOutConfig = `{"nodes": [{"id": 1, "type": "stream_out", "stream_out": {}}]}`

func TestInfo(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.url + "/v1/info")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var info InfoResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "api-test", info.Name)
	assert.Equal(t, "SN-API", info.Serial)
	assert.Equal(t, device.ProtocolVersion, info.SynapseVersion)
	assert.Equal(t, errors.CodeOK, info.Status.Code)
	assert.Equal(t, device.StateInitializing, info.Status.State)
	require.Len(t, info.Peripherals, 1)
	assert.Equal(t, 192, info.Peripherals[0].Capabilities.ChCount)
}

func TestConfigureStartStop(t *testing.T) {
	h := newHarness(t)

	code, st := post(t, h.url+"/v1/configure", streamOutConfig)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, st.OK())
	assert.Equal(t, device.StateConfigured, st.State)
	require.Len(t, st.Sockets, 1)

	code, st = post(t, h.url+"/v1/start", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, device.StateRunning, st.State)
	assert.Equal(t, "127.0.0.1:6480", st.Sockets[0].Destination)

	code, st = post(t, h.url+"/v1/stop", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, device.StateStopped, st.State)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ControlRequests.WithLabelValues("configure", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ControlRequests.WithLabelValues("start", "ok")))
}

func TestConfigure_SchemaRejects(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"not json", `{"nodes": [`, "malformed configuration"},
		{"missing nodes", `{}`, "nodes is required"},
		{"unknown type", `{"nodes": [{"id": 1, "type": "spike_sorter"}]}`, "nodes.0.type"},
		{"negative id", `{"nodes": [{"id": -1, "type": "stream_out"}]}`, "nodes.0.id"},
		{"unknown field", `{"nodes": [{"id": 1, "type": "stream_out", "stream_out": {"ttl": 3}}]}`, "ttl"},
		{"bad transport", `{"nodes": [{"id": 1, "type": "stream_in", "stream_in": {"transport": "tcp"}}]}`, "transport"},
		{"bad connection", `{"nodes": [], "connections": [{"src": 1}]}`, "dst is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			code, st := post(t, h.url+"/v1/configure", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, errors.CodeValidationError, st.Code)
			assert.Contains(t, st.Message, tt.message)
			assert.Equal(t, device.StateInitializing, st.State)
		})
	}
}

func TestConfigure_NodeValidation(t *testing.T) {
	h := newHarness(t)

	body := `{"nodes": [{"id": 1, "type": "electrical_broadband", "electrical_broadband":
		{"peripheral_id": 1, "sample_rate": 12345, "bit_width": 16, "channels": [{"id": 1}]}}]}`
	code, st := post(t, h.url+"/v1/configure", body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, errors.CodeValidationError, st.Code)
	assert.Contains(t, st.Message, "[500 1000 2000 10000 30000]")
}

func TestConfigure_TooLarge(t *testing.T) {
	ctrl := &fakeController{}
	srv, err := NewServer(":0", ctrl, WithMaxRequestSize(16))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/configure", bytes.NewBufferString(streamOutConfig))
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "exceeds maximum size")
	assert.False(t, ctrl.configured)
}

func TestStart_InvalidState(t *testing.T) {
	h := newHarness(t)

	code, st := post(t, h.url+"/v1/start", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, errors.CodeInvalidState, st.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ControlRequests.WithLabelValues("start", "invalid_state")))

	code, st = post(t, h.url+"/v1/stop", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, errors.CodeInvalidState, st.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.url + "/v1/start")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRequestIDPropagates(t *testing.T) {
	h := newHarness(t)

	req, err := http.NewRequest(http.MethodGet, h.url+"/v1/info", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

type fakeController struct {
	configured bool
	health     health.Status
	startErr   error
}

func (f *fakeController) Info() device.Snapshot { return device.Snapshot{} }

func (f *fakeController) Configure(context.Context, device.Configuration) error {
	f.configured = true
	return nil
}

func (f *fakeController) Start(context.Context) error { return f.startErr }

func (f *fakeController) Stop(context.Context) error { return nil }

func (f *fakeController) Status(err error) device.Status {
	st := device.Status{Code: errors.CodeOf(err)}
	if err != nil {
		st.Message = err.Error()
	}
	return st
}

func (f *fakeController) Health() health.Status { return f.health }

func TestUndefinedErrorMapsTo500(t *testing.T) {
	ctrl := &fakeController{startErr: errors.New("driver exploded")}
	srv, err := NewServer(":0", ctrl)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/start", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"undefined_error"`)
}

func TestHealthz(t *testing.T) {
	ctrl := &fakeController{health: health.NewHealthy("device", "ok")}
	srv, err := NewServer(":0", ctrl)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	ctrl.health = health.NewUnhealthy("device", "node 3 failing")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "node 3 failing")
}

func TestServer_StartShutdown(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", &fakeController{})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	assert.Error(t, srv.Start())

	resp, err := http.Get("http://" + srv.Addr() + "/v1/info")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, srv.Shutdown(ctx))
}

func TestNewServer_RequiresController(t *testing.T) {
	_, err := NewServer(":0", nil)
	assert.True(t, errors.Is(err, errors.ErrMissingConfig))
}
