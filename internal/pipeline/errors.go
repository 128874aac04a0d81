package pipeline

import "fmt"

// ValidationError reports a malformed request. Maps to HTTP 400.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}

// AuthError reports a missing or unverifiable identity. Maps to HTTP 401.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "unauthorized: " + e.Reason
}

// NotFoundError reports a missing resource, including resources hidden by
// tenant isolation. Maps to HTTP 404.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// UpstreamError reports a fatal provider failure (embedding or completion).
// Maps to HTTP 500.
type UpstreamError struct {
	Stage string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
