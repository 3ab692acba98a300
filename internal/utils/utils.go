package utils

// Value dereferences v, returning the zero value for nil. Used for optional
// fields in backend responses.
func Value[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

// ToStringSlice keeps only the string elements of a decoded JSON array
func ToStringSlice(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
