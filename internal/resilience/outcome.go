// Package resilience wraps the conversation store with bounded retries and
// degrades selected operations to cached or placeholder results when
// durable storage stays unavailable.
package resilience

// Status tells a caller whether an outcome was persisted.
type Status int

const (
	// StatusStored means the value came from durable storage.
	StatusStored Status = iota
	// StatusDegraded means storage was unavailable and the value is a
	// cached copy or a non-persisted placeholder.
	StatusDegraded
	// StatusFailed means the operation failed and Err is set.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusStored:
		return "stored"
	case StatusDegraded:
		return "degraded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of a degradable operation.
type Outcome[T any] struct {
	Value  T
	Status Status
	// Reason explains a degraded outcome.
	Reason string
	Err    error
}

// Stored wraps a persisted value.
func Stored[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v, Status: StatusStored}
}

// Degraded wraps a value that was not persisted.
func Degraded[T any](v T, reason string) Outcome[T] {
	return Outcome[T]{Value: v, Status: StatusDegraded, Reason: reason}
}

// Failed wraps an error.
func Failed[T any](err error) Outcome[T] {
	return Outcome[T]{Status: StatusFailed, Err: err}
}

// IsStored reports whether the value was persisted.
func (o Outcome[T]) IsStored() bool { return o.Status == StatusStored }

// IsDegraded reports whether the value is a cached copy or placeholder.
func (o Outcome[T]) IsDegraded() bool { return o.Status == StatusDegraded }

// Get returns the value of a stored or degraded outcome, or the error of a
// failed one.
func (o Outcome[T]) Get() (T, error) {
	return o.Value, o.Err
}
