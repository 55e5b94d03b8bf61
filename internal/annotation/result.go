package annotation

// Result is the outcome of a best-effort extraction: either Parsed with a
// value or Absent. Absent covers both a missing marker and a payload that
// failed to decode.
type Result[T any] struct {
	value  T
	parsed bool
}

// Parsed wraps a successfully decoded value.
func Parsed[T any](v T) Result[T] {
	return Result[T]{value: v, parsed: true}
}

// Absent returns an empty result.
func Absent[T any]() Result[T] {
	return Result[T]{}
}

// Get returns the value and whether it was parsed.
func (r Result[T]) Get() (T, bool) {
	return r.value, r.parsed
}

// IsParsed reports whether a value is present.
func (r Result[T]) IsParsed() bool {
	return r.parsed
}

// OrElse returns the parsed value or fallback.
func (r Result[T]) OrElse(fallback T) T {
	if r.parsed {
		return r.value
	}
	return fallback
}
