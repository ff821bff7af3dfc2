package server

import (
	"net/http"
	"strings"
)

// PipelineHTTP defines the minimal surface the lifecycle router needs from
// the search pipeline to serve HTTP requests.
type PipelineHTTP interface {
	ServeSearch(http.ResponseWriter, *http.Request)
	ServeHealth(http.ResponseWriter, *http.Request)
	ServeFlush(http.ResponseWriter, *http.Request)
}

// NewPipelineHandler wires the HTTP routing facade to the search pipeline
// so the lifecycle server owns URL dispatch without embedding routing logic
// into the pipeline itself.
func NewPipelineHandler(p PipelineHTTP) http.Handler {
	if p == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "pipeline unavailable", http.StatusServiceUnavailable)
		})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch strings.TrimSuffix(r.URL.Path, "/") {
		case "":
			p.ServeSearch(w, r)
		case "/health", "/healthz":
			p.ServeHealth(w, r)
		case "/cache/flush":
			p.ServeFlush(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
