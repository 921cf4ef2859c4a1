package ptr

// Of returns a pointer to a copy of t. Zero values are kept, which is what
// presence-based JSON omission relies on.
func Of[T any](t T) *T {
	return &t
}

// Deref returns the value p points to or the zero value of T if p is nil.
func Deref[T any](p *T) T {
	if p == nil {
		return *new(T)
	}
	return *p
}
