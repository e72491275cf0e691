package api

import (
	"context"
	"net"
	"net/http"
	"time"
)

// NewServer wraps the router in an http.Server. Request contexts derive from
// a base context that is cancelled when Shutdown begins, so display event
// streams end instead of holding the shutdown until its deadline.
func NewServer(addr string, handler http.Handler) *http.Server {
	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}
