// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "context"

// GracefulShutdown stops internal services and releases resources.
type GracefulShutdown interface {
	Shutdown(ctx context.Context) error
}
