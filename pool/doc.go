// Package pool
// Author: momentics <momentics@gmail.com>
//
// Fixed-capacity block allocator for small variable-length messages.
// A single backing arena is partitioned into size classes derived from the
// maximum message size; every class keeps an O(1) free list of block indexes.
// See allocator.go for the allocation path and message.go for the owned handle.
package pool
