package service

// ValidationKind classifies request validation failures detected before any
// upstream call is made.
type ValidationKind int

const (
	KindInvalidDateFormat ValidationKind = iota
	KindInvalidDateRange
)

func (k ValidationKind) String() string {
	switch k {
	case KindInvalidDateFormat:
		return "invalid_date_format"
	case KindInvalidDateRange:
		return "invalid_date_range"
	default:
		return "unknown"
	}
}

// ValidationError rejects a request with bad inputs. It surfaces before any
// fetch happens and maps to HTTP 400.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
