package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProductNotFound is returned when a product id is not in the catalog
	ErrProductNotFound = errors.New("product not found")

	// ErrInvalidProduct is returned when a product fails the canonical schema
	ErrInvalidProduct = errors.New("invalid product")

	// ErrProductExists is returned when adding a product whose id is taken
	ErrProductExists = errors.New("product already exists")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrUpstreamFailure is returned when the staff backend request fails
	ErrUpstreamFailure = errors.New("upstream request failed")

	// ErrMalformedPayload is returned when a payload has the wrong top-level shape
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrBelowThreshold is returned when too few records survive normalization
	ErrBelowThreshold = errors.New("normalization success rate below threshold")

	// ErrEmptyCatalog is returned when a sync yields no usable products
	ErrEmptyCatalog = errors.New("catalog is empty")

	// ErrCacheMiss is returned when a key is not found in a KV store
	ErrCacheMiss = errors.New("cache miss")

	// ErrRateLimited is returned when rate limit is exceeded
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUnauthorized is returned when a shared secret does not match
	ErrUnauthorized = errors.New("unauthorized")
)

// UpstreamError describes a failed call to the staff backend. StatusCode is
// zero when the failure happened before a response was received.
type UpstreamError struct {
	StatusCode int
	Body       string // excerpt, truncated
	Reason     string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("upstream request failed: %s", e.Reason)
	}
	if e.Body == "" {
		return fmt.Sprintf("upstream request failed: status %d: %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("upstream request failed: status %d: %s: %s", e.StatusCode, e.Reason, e.Body)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstreamFailure }

// StructuralError reports a payload whose top-level shape is unusable
type StructuralError struct {
	Detail string
}

func (e *StructuralError) Error() string {
	return "malformed payload: " + e.Detail
}

func (e *StructuralError) Unwrap() error { return ErrMalformedPayload }

// RecordIssue lists the schema violations of one dropped record
type RecordIssue struct {
	Index  int      `json:"index"`
	Name   string   `json:"name"`
	Issues []string `json:"issues"`
}

func (r RecordIssue) String() string {
	name := r.Name
	if name == "" {
		name = "<unnamed>"
	}
	return fmt.Sprintf("#%d %s: %s", r.Index, name, strings.Join(r.Issues, "; "))
}

// ThresholdError is the aggregate failure of a normalization batch. It means
// the whole batch should not be trusted, not that a single record was bad.
type ThresholdError struct {
	Total    int
	Accepted int
	Required float64
	Failures []RecordIssue
}

// SuccessRate is the fraction of records that survived normalization
func (e *ThresholdError) SuccessRate() float64 {
	if e.Total == 0 {
		return 0
	}
	return float64(e.Accepted) / float64(e.Total)
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("only %d of %d records normalized (%.0f%%, need %.0f%%)",
		e.Accepted, e.Total, e.SuccessRate()*100, e.Required*100)
}

func (e *ThresholdError) Unwrap() error { return ErrBelowThreshold }

// InvalidProductError is raised by the recommendation engine when a product
// reaching it is structurally incomplete.
type InvalidProductError struct {
	Index  int
	Name   string
	Reason string
}

func (e *InvalidProductError) Error() string {
	return fmt.Sprintf("product %d (%s): %s", e.Index, e.Name, e.Reason)
}

func (e *InvalidProductError) Unwrap() error { return ErrInvalidProduct }
