package upstream

// Kind classifies upstream failures so the orchestrator can map them to
// HTTP statuses without inspecting raw error text.
type Kind string

const (
	// KindTimeout marks a client-side deadline hit before the upstream
	// answered.
	KindTimeout Kind = "timeout"
	// KindUnauthorized marks a rejected credential.
	KindUnauthorized Kind = "unauthorized"
	// KindRateLimited marks the upstream throttling this proxy.
	KindRateLimited Kind = "rate_limited"
	// KindServerError marks a 5xx from the upstream.
	KindServerError Kind = "server_error"
	// KindUnknown marks everything else.
	KindUnknown Kind = "unknown"
)

// Error carries a classification plus the underlying cause. Error() returns
// only a generic, safe message; the cause is available through Unwrap for
// internal logging and never reaches API clients.
type Error struct {
	Kind  Kind
	cause error
}

// NewError wraps cause under a classification.
func NewError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTimeout:
		return "upstream: search timed out"
	case KindUnauthorized:
		return "upstream: credential rejected"
	case KindRateLimited:
		return "upstream: rate limited"
	case KindServerError:
		return "upstream: server error"
	default:
		return "upstream: request failed"
	}
}

func (e *Error) Unwrap() error { return e.cause }
