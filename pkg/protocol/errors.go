package protocol

// Error codes returned in JSON error bodies by the relay HTTP endpoints.
const (
	ErrInvalidRequest    = "INVALID_REQUEST"
	ErrNotFound          = "NOT_FOUND"
	ErrResourceExhausted = "RESOURCE_EXHAUSTED"
)

// ErrorShape describes a relay error response.
type ErrorShape struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Retryable    bool   `json:"retryable,omitempty"`
	RetryAfterMs int    `json:"retryAfterMs,omitempty"`
}

// NewError creates an error body.
func NewError(code, message string) *ErrorShape {
	return &ErrorShape{Code: code, Message: message}
}
