package health

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/termbridge/termbridge/config"
)

const probeTimeout = 10 * time.Second

// Bridge metric names we track from its /metrics exposition.
const (
	// 1 while the bridge holds a live session to the terminal, else 0.
	bridgeTerminalUp = "bridge_terminal_connected"

	// Seconds since the bridge process started.
	bridgeUptime = "bridge_uptime_seconds"

	// Total unary RPC requests the bridge has served.
	bridgeRequests = "bridge_rpc_requests_total"

	// Total events the bridge has pushed across all streams.
	bridgeEvents = "bridge_stream_events_total"

	// Total terminal reconnects performed bridge-side.
	bridgeReconnects = "bridge_terminal_reconnects_total"
)

// Result is the normalized output of one probe.
type Result struct {
	CheckedAt time.Time

	// TerminalUp reports whether the bridge currently holds a live
	// terminal session. A false here explains client-side session
	// errors without any client reconnect being able to fix them.
	TerminalUp bool

	UptimeSeconds  float64
	Requests       float64
	StreamEvents   float64
	BridgeRestarts float64

	// Err is non-nil if the probe itself failed (connectivity, auth,
	// parse). The other fields are zero in that case.
	Err error
}

// Probe checks the bridge's Prometheus metrics endpoint.
type Probe struct {
	cfg    config.HealthConfig
	client *http.Client
}

// New builds a Probe for the configured endpoint, wiring auth and TLS
// material into the HTTP client once.
func New(cfg config.HealthConfig) (*Probe, error) {
	client, err := buildHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("health: build http client: %w", err)
	}
	return &Probe{cfg: cfg, client: client}, nil
}

// Check fetches and parses the bridge's /metrics endpoint. A fetch or
// parse failure is reported inside the Result rather than as a Go
// error so periodic callers keep their loop simple.
func (p *Probe) Check(ctx context.Context) *Result {
	res := &Result{CheckedAt: time.Now().UTC()}

	mfs, err := fetchMetrics(ctx, p.client, p.cfg.Endpoint)
	if err != nil {
		res.Err = fmt.Errorf("health: probe %q: %w", p.cfg.Endpoint, err)
		slog.Warn("health: probe failed", "endpoint", p.cfg.Endpoint, "err", err)
		return res
	}

	res.TerminalUp = sumFamily(mfs[bridgeTerminalUp]) > 0
	res.UptimeSeconds = sumFamily(mfs[bridgeUptime])
	res.Requests = sumFamily(mfs[bridgeRequests])
	res.StreamEvents = sumFamily(mfs[bridgeEvents])
	res.BridgeRestarts = sumFamily(mfs[bridgeReconnects])
	return res
}

// Run probes at the configured interval, logging transitions of the
// bridge's terminal link. Blocks until ctx is cancelled.
func (p *Probe) Run(ctx context.Context) {
	interval := p.cfg.Interval
	if interval <= 0 {
		interval = config.DefaultHealthInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	var lastUp *bool
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			res := p.Check(ctx)
			if res.Err != nil {
				continue
			}
			if lastUp == nil || *lastUp != res.TerminalUp {
				slog.Info("health: bridge terminal link",
					"up", res.TerminalUp, "uptime_s", res.UptimeSeconds)
				up := res.TerminalUp
				lastUp = &up
			}
		}
	}
}

// authRoundTripper injects authentication headers into every request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs the probe's http.Client from auth and TLS
// settings.
func buildHTTPClient(cfg config.HealthConfig) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if cfg.TLS.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if cfg.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(cfg.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", cfg.TLS.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: cfg.Auth,
		},
		Timeout: probeTimeout,
	}, nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric
// families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r.
// A partial result with a non-fatal parse warning still succeeds.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse exposition: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a
// MetricFamily. Returns 0 if mf is nil.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}
