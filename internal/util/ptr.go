// Package util holds small generic helpers shared across packages.
package util

// Ptr returns a pointer to v, for optional fields set from literals.
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns *p, or def when p is nil.
func Deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
