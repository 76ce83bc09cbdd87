// Package sizing provides safe size arithmetic and conversions to prevent overflow.
package sizing

import "math"

// ToInt converts an int64 to int, returning overflowErr if it doesn't fit.
func ToInt(n int64, overflowErr error) (int, error) {
	if n > math.MaxInt {
		return 0, overflowErr
	}
	return int(n), nil
}

// AddInt64 adds two int64 values, returning (result, false) on overflow.
func AddInt64(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// Min returns the smaller of two int64 values.
func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of two int64 values.
func Max(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
