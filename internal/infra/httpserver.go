package infra

import (
	"context"
	"net/http"
	"time"
)

// HTTPServer carries the API's timeout policy and graceful-shutdown
// lifecycle around a stdlib server.
type HTTPServer struct {
	srv *http.Server
}

// NewHTTPServer binds the handler to the configured port. WriteTimeout must
// stay generous relative to the websocket stream's poll interval or long
// status streams get cut off mid-job.
func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	return &HTTPServer{srv: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}}
}

// Start blocks serving requests until Shutdown or failure.
func (s *HTTPServer) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests until the context expires.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
