package proxy

import (
	"errors"
	"net/http"

	"github.com/l0p7/searchedge/internal/upstream"
)

// Kind names a terminal request outcome. Each kind maps to one HTTP status
// and one generic, safe client message; upstream detail stays in the logs.
type Kind string

const (
	KindInvalidInput         Kind = "invalid_input"
	KindOriginRejected       Kind = "origin_rejected"
	KindRateLimited          Kind = "rate_limited"
	KindUpstreamTimeout      Kind = "upstream_timeout"
	KindUpstreamUnauthorized Kind = "upstream_unauthorized"
	KindUpstreamRateLimited  Kind = "upstream_rate_limited"
	KindUpstreamServerError  Kind = "upstream_server_error"
	KindUpstreamUnknown      Kind = "upstream_unknown"
)

// HTTPStatus maps the kind to the status code returned to the caller.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindOriginRejected:
		return http.StatusForbidden
	case KindRateLimited, KindUpstreamRateLimited:
		return http.StatusTooManyRequests
	case KindUpstreamUnauthorized:
		return http.StatusUnauthorized
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case KindUpstreamServerError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the sanitized client-facing message for the kind.
func (k Kind) Message() string {
	switch k {
	case KindInvalidInput:
		return "request body must be JSON with a non-empty query of at most 500 characters"
	case KindOriginRejected:
		return "origin not allowed"
	case KindRateLimited:
		return "rate limit exceeded, slow down"
	case KindUpstreamTimeout:
		return "search timed out, try again"
	case KindUpstreamUnauthorized:
		return "search backend rejected the proxy credential"
	case KindUpstreamRateLimited:
		return "search backend is throttling, try again later"
	case KindUpstreamServerError:
		return "search backend unavailable"
	default:
		return "search failed"
	}
}

// classifyUpstream maps an upstream client error to the response taxonomy.
func classifyUpstream(err error) Kind {
	var upstreamErr *upstream.Error
	if errors.As(err, &upstreamErr) {
		switch upstreamErr.Kind {
		case upstream.KindTimeout:
			return KindUpstreamTimeout
		case upstream.KindUnauthorized:
			return KindUpstreamUnauthorized
		case upstream.KindRateLimited:
			return KindUpstreamRateLimited
		case upstream.KindServerError:
			return KindUpstreamServerError
		}
	}
	return KindUpstreamUnknown
}
