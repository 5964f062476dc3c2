package slicesutil

import "math/bits"

// ResizeNoCopyMayOverallocate resizes dst to minimum n bytes and returns the resized buffer (which may be newly allocated).
//
// If newly allocated buffer is returned then b contents isn't copied to it.
func ResizeNoCopyMayOverallocate[T any](dst []T, n int) []T {
	if n <= cap(dst) {
		return dst[:n]
	}
	nNew := roundToNearestPow2(n)
	dstNew := make([]T, nNew)
	return dstNew[:n]
}

func roundToNearestPow2(n int) int {
	pow2 := uint8(bits.Len(uint(n - 1)))
	return 1 << pow2
}

// SetLength resizes dst to exactly n elements and returns the resized slice.
//
// Unlike ResizeNoCopyMayOverallocate, existing contents are preserved when a
// new backing array must be allocated.
func SetLength[T any](dst []T, n int) []T {
	if n <= cap(dst) {
		return dst[:n]
	}
	dstNew := make([]T, n)
	copy(dstNew, dst)
	return dstNew
}
