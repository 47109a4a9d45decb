// Package ptr provides utility functions for working with pointers.
package ptr

// Deref returns the value pointed to by ptr, or the zero value for nil.
func Deref[T any](ptr *T) T {
	var zero T

	return DerefOr(ptr, zero)
}

// DerefOr returns the value pointed to by ptr, or fallback for nil.
func DerefOr[T any](ptr *T, fallback T) T {
	if ptr == nil {
		return fallback
	}

	return *ptr
}
