package common

import "golang.org/x/exp/constraints"

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// DivCeil divides n by d rounding up. Used for workgroup counts, where a partial group still
// needs a dispatch. A zero divisor returns zero instead of panicking.
//
// Parameters:
//   - n: the dividend
//   - d: the divisor
//
// Returns:
//   - T: ceil(n / d)
func DivCeil[T constraints.Unsigned](n, d T) T {
	if d == 0 {
		return 0
	}
	return (n + d - 1) / d
}

// AlignUp rounds n up to the next multiple of quantum. Quantum must be a power of two.
// A zero quantum returns n unchanged.
//
// Parameters:
//   - n: the value to round up
//   - quantum: the power-of-two allocation granularity
//
// Returns:
//   - T: the smallest multiple of quantum that is >= n
func AlignUp[T constraints.Unsigned](n, quantum T) T {
	if quantum == 0 {
		return n
	}
	return (n + quantum - 1) &^ (quantum - 1)
}
