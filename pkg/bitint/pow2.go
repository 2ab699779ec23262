// SPDX-License-Identifier: MIT
// Package bitint holds the power-of-two helpers used to validate and size
// FFT frames. All functions are allocation free and constant time.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Sizes <= 0
// return 1. Subtracting one first keeps exact powers of two unchanged.
//
//	Input  Output
//	1000   1024
//	1024   1024
//	0      1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// PrevPowerOfTwo returns the largest power of two <= size, or 0 when size
// is not positive.
func PrevPowerOfTwo(size int) int {
	if size <= 0 {
		return 0
	}
	return 1 << (bits.Len(uint(size)) - 1)
}

// IsPowerOfTwo reports whether n is a positive power of two. A power of
// two has a single bit set, so clearing the lowest set bit leaves zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
