// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the poll-mode readiness selector used by
// single-goroutine front ends: channel readiness handles and plain descriptors
// such as stdin are registered side by side and dispatched from Poll.
package reactor
