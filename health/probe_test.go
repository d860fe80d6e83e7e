package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/termbridge/termbridge/config"
)

const exposition = `# HELP bridge_terminal_connected Whether the bridge holds a live terminal session.
# TYPE bridge_terminal_connected gauge
bridge_terminal_connected 1
# HELP bridge_uptime_seconds Seconds since the bridge started.
# TYPE bridge_uptime_seconds gauge
bridge_uptime_seconds 3600.5
# HELP bridge_rpc_requests_total Unary RPC requests served.
# TYPE bridge_rpc_requests_total counter
bridge_rpc_requests_total{method="account.summary"} 40
bridge_rpc_requests_total{method="order.send"} 2
# HELP bridge_stream_events_total Events pushed across all streams.
# TYPE bridge_stream_events_total counter
bridge_stream_events_total 12345
# HELP bridge_terminal_reconnects_total Terminal reconnects performed bridge-side.
# TYPE bridge_terminal_reconnects_total counter
bridge_terminal_reconnects_total 3
`

func newMetricsServer(t *testing.T, body string, check func(*http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheck_ParsesBridgeMetrics(t *testing.T) {
	srv := newMetricsServer(t, exposition, nil)

	p, err := New(config.HealthConfig{Endpoint: srv.URL + "/metrics"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res := p.Check(context.Background())
	if res.Err != nil {
		t.Fatalf("Check: %v", res.Err)
	}
	if !res.TerminalUp {
		t.Error("TerminalUp: got false")
	}
	if res.UptimeSeconds != 3600.5 {
		t.Errorf("UptimeSeconds: got %v", res.UptimeSeconds)
	}
	if res.Requests != 42 {
		t.Errorf("Requests: got %v, want 42 (labelled series summed)", res.Requests)
	}
	if res.StreamEvents != 12345 {
		t.Errorf("StreamEvents: got %v", res.StreamEvents)
	}
	if res.BridgeRestarts != 3 {
		t.Errorf("BridgeRestarts: got %v", res.BridgeRestarts)
	}
}

func TestCheck_TerminalDown(t *testing.T) {
	srv := newMetricsServer(t, "bridge_terminal_connected 0\n", nil)

	p, err := New(config.HealthConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := p.Check(context.Background())
	if res.Err != nil {
		t.Fatalf("Check: %v", res.Err)
	}
	if res.TerminalUp {
		t.Error("TerminalUp: got true for a down bridge")
	}
}

func TestCheck_MissingMetricsAreZero(t *testing.T) {
	srv := newMetricsServer(t, "some_other_metric 9\n", nil)

	p, err := New(config.HealthConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := p.Check(context.Background())
	if res.Err != nil {
		t.Fatalf("Check: %v", res.Err)
	}
	if res.TerminalUp || res.Requests != 0 || res.UptimeSeconds != 0 {
		t.Errorf("result: got %+v, want zeroes", res)
	}
}

func TestCheck_HTTPErrorReportedInResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	p, err := New(config.HealthConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := p.Check(context.Background())
	if res.Err == nil {
		t.Fatal("Check: expected error for 403 response")
	}
	if !strings.Contains(res.Err.Error(), "403") {
		t.Errorf("error: got %v, want status mentioned", res.Err)
	}
}

func TestCheck_UnreachableEndpoint(t *testing.T) {
	p, err := New(config.HealthConfig{Endpoint: "http://127.0.0.1:1/metrics"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := p.Check(context.Background())
	if res.Err == nil {
		t.Fatal("Check: expected connectivity error")
	}
}

func TestCheck_APIKeyAuthHeader(t *testing.T) {
	t.Setenv("TB_TEST_HEALTH_KEY", "k-789")

	var gotKey string
	srv := newMetricsServer(t, exposition, func(r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
	})

	p, err := New(config.HealthConfig{
		Endpoint: srv.URL,
		Auth:     config.AuthConfig{Mode: "apikey", Header: "X-API-Key", KeyEnv: "TB_TEST_HEALTH_KEY"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if res := p.Check(context.Background()); res.Err != nil {
		t.Fatalf("Check: %v", res.Err)
	}
	if gotKey != "k-789" {
		t.Errorf("api key header: got %q", gotKey)
	}
}

func TestCheck_BearerAuthHeader(t *testing.T) {
	t.Setenv("TB_TEST_HEALTH_TOKEN", "tok-1")

	var gotAuth string
	srv := newMetricsServer(t, exposition, func(r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	})

	p, err := New(config.HealthConfig{
		Endpoint: srv.URL,
		Auth:     config.AuthConfig{Mode: "bearer", TokenEnv: "TB_TEST_HEALTH_TOKEN"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if res := p.Check(context.Background()); res.Err != nil {
		t.Fatalf("Check: %v", res.Err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("authorization header: got %q", gotAuth)
	}
}

func TestCheck_BasicAuth(t *testing.T) {
	t.Setenv("TB_TEST_HEALTH_PASSWORD", "pw")

	var user, pass string
	var ok bool
	srv := newMetricsServer(t, exposition, func(r *http.Request) {
		user, pass, ok = r.BasicAuth()
	})

	p, err := New(config.HealthConfig{
		Endpoint: srv.URL,
		Auth:     config.AuthConfig{Mode: "basic", Username: "probe", PasswordEnv: "TB_TEST_HEALTH_PASSWORD"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if res := p.Check(context.Background()); res.Err != nil {
		t.Fatalf("Check: %v", res.Err)
	}
	if !ok || user != "probe" || pass != "pw" {
		t.Errorf("basic auth: got ok=%v user=%q pass=%q", ok, user, pass)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	srv := newMetricsServer(t, exposition, nil)

	p, err := New(config.HealthConfig{Endpoint: srv.URL, Interval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
