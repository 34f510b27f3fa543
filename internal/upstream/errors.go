package upstream

import "fmt"

// Kind classifies a fetch failure.
type Kind int

const (
	// KindTimeout: the call's deadline expired before a response arrived.
	KindTimeout Kind = iota
	// KindUnreachable: connection-level failure (DNS, refused, reset).
	KindUnreachable
	// KindUpstreamRejected: upstream answered with a 4xx status; retrying
	// the same request cannot succeed.
	KindUpstreamRejected
	// KindTooManyRetries: transient failures persisted past the retry budget.
	KindTooManyRetries
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	case KindUpstreamRejected:
		return "upstream_rejected"
	case KindTooManyRetries:
		return "too_many_retries"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by the fetcher.
type Error struct {
	Kind       Kind
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream fetch %s: %s (status %d)", e.Endpoint, e.Kind, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("upstream fetch %s: %s: %v", e.Endpoint, e.Kind, e.Err)
	}
	return fmt.Sprintf("upstream fetch %s: %s", e.Endpoint, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }
