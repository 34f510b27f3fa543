package scrape

import "fmt"

// ParseKind classifies a whole-payload parse failure. Single bad rows never
// produce one of these; they are dropped and counted instead.
type ParseKind int

const (
	// KindEmptyPayload: a recognizable table was found but held no data rows.
	KindEmptyPayload ParseKind = iota
	// KindUnrecognizedFormat: no table matching the expected columns, or
	// every row failed to parse.
	KindUnrecognizedFormat
)

func (k ParseKind) String() string {
	switch k {
	case KindEmptyPayload:
		return "empty_payload"
	case KindUnrecognizedFormat:
		return "unrecognized_format"
	default:
		return "unknown"
	}
}

// ParseError reports that a payload as a whole could not be interpreted.
type ParseError struct {
	Kind   ParseKind
	Source string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Source, e.Kind)
}
