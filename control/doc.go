// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, hot reload, metrics and debug introspection for the message
// pool and its harness:
//   - TOML configuration with validation and conversion to msgpool.Config
//   - ConfigStore with synchronous reload listeners
//   - Prometheus collectors over pool, channel and worker state
//   - Named debug probes dumped on demand
package control
