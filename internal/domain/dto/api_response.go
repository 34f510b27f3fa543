package dto

import "time"

// APIResponse is the envelope returned by every data endpoint.
//
// Fields match the public API contract and may differ from internal domain
// models. This ensures loose coupling between the API surface and business logic.
type APIResponse struct {
	Success bool   `json:"success" example:"true"`
	Data    any    `json:"data"`
	Message string `json:"message" example:"success"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// Meta carries response qualifiers that are not part of the payload itself.
//
// Stale is set when a fresh upstream fetch failed and a previously cached
// snapshot was served instead; clients must not treat such data as current.
// DroppedRows counts upstream rows discarded during normalization.
type Meta struct {
	Stale       bool      `json:"stale,omitempty" example:"false"`
	Source      string    `json:"source,omitempty" example:"latest"`
	FetchedAt   time.Time `json:"fetched_at,omitempty"`
	DroppedRows int       `json:"dropped_rows,omitempty" example:"0"`
}

// NewAPIResponse wraps a successful payload in the standard envelope.
func NewAPIResponse(data any, meta *Meta) APIResponse {
	return APIResponse{
		Success: true,
		Data:    data,
		Message: "success",
		Meta:    meta,
	}
}

// NewStaleResponse wraps a cached payload served after an upstream failure.
// The message makes the degradation explicit alongside Meta.Stale.
func NewStaleResponse(data any, meta *Meta) APIResponse {
	if meta == nil {
		meta = &Meta{}
	}
	meta.Stale = true
	return APIResponse{
		Success: true,
		Data:    data,
		Message: "serving cached data; upstream unavailable",
		Meta:    meta,
	}
}
