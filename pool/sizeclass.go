// File: pool/sizeclass.go
// Author: momentics <momentics@gmail.com>
//
// Size class derivation from the configured maximum message size.

package pool

// DefaultMinClassSize is the smallest block size when Config.MinClassSize is zero.
const DefaultMinClassSize = 16

// classSizes returns ascending block sizes: powers of two from minClass while
// below maxSize, then maxSize itself as the last class.
func classSizes(minClass, maxSize int) []int {
	if minClass <= 0 {
		minClass = DefaultMinClassSize
	}
	if minClass > maxSize {
		minClass = maxSize
	}
	var sizes []int
	for size := minClass; size < maxSize; size <<= 1 {
		sizes = append(sizes, size)
	}
	return append(sizes, maxSize)
}

// classFor returns the index of the smallest class that fits size, or -1.
func classFor(sizes []int, size int) int {
	for i, s := range sizes {
		if size <= s {
			return i
		}
	}
	return -1
}
