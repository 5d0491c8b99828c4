// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Worker scaling for message pool consumers. Scaler reacts to depth watcher
// signals by adding consumer goroutines up to a fixed cap; goroutines are
// hosted on an ants pool and can be pinned to CPUs.
package concurrency
