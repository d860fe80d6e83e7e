// Package health probes the terminal bridge's own Prometheus /metrics
// endpoint. The client's retry loop can mask a bridge that has lost
// its terminal for a long time; the probe makes that visible by
// reporting whether the bridge-side terminal link is up, its uptime,
// and its served request and event totals.
//
// Auth (apikey | bearer | basic) and TLS material come from
// config.HealthConfig; secrets resolve from environment variables.
package health
