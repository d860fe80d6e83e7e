// Package config loads and watches the termbridge configuration file
// (config.yaml).
//
// Top-level types:
//   - Config{Client, Health} — full config tree parsed from YAML
//   - ClientConfig — endpoint, account, password_env, server, backoff,
//     call_timeout, dial_timeout, tls; Password() and Credentials()
//     resolve the account password from an environment variable so it
//     never appears in the file
//   - HealthConfig — metrics endpoint, interval, auth, tls for the
//     bridge health probe
//   - AuthConfig — mode (apikey|bearer|basic|none) with env-resolved
//     secrets
//
// Load(path) reads the YAML file, applies defaults (500ms backoff,
// 10s call timeout, 15s dial timeout, 30s health interval), then
// validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify on the parent directory to
// survive the rename→create pattern used by atomic-save editors, and
// calls onChange with each successfully re-parsed Config.
package config
