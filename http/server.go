// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package http serves the operational endpoints of a queuein process.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/z5labs/queuein/app"
	"github.com/z5labs/queuein/config"

	"github.com/sourcegraph/conc/pool"
)

// TCPListener is a config.Reader of TCP listeners.
type TCPListener struct {
	Addr config.Reader[string]
}

// TCPListenerOption is a functional option for configuring a TCPListener.
type TCPListenerOption func(*TCPListener)

// Addr sets the network address for the listener, in the form "host:port" or ":port".
func Addr(addr config.Reader[string]) TCPListenerOption {
	return func(tcpLn *TCPListener) {
		tcpLn.Addr = addr
	}
}

// AddrFromEnv reads the listen address from the HTTP_ADDR environment variable.
func AddrFromEnv() config.Reader[string] {
	return config.Env("HTTP_ADDR")
}

// NewTCPListener creates a new TCPListener which defaults to ":8080".
func NewTCPListener(options ...TCPListenerOption) TCPListener {
	tcpLn := TCPListener{
		Addr: config.EmptyReader[string](),
	}
	for _, option := range options {
		option(&tcpLn)
	}
	return tcpLn
}

// Read implements the [config.Reader] interface by listening on the configured address.
func (tcpLn TCPListener) Read(ctx context.Context) (config.Value[net.Listener], error) {
	addr, err := config.Read(ctx, config.Default(":8080", tcpLn.Addr))
	if err != nil {
		return config.Value[net.Listener]{}, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return config.Value[net.Listener]{}, err
	}
	return config.ValueOf(ln), nil
}

// Server holds the configuration for an HTTP server.
type Server struct {
	Listener          config.Reader[net.Listener]
	ReadTimeout       config.Reader[time.Duration]
	ReadHeaderTimeout config.Reader[time.Duration]
	WriteTimeout      config.Reader[time.Duration]
	IdleTimeout       config.Reader[time.Duration]
	ShutdownTimeout   config.Reader[time.Duration]
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// ReadTimeout sets the maximum duration for reading an entire request.
// The default is 5 seconds.
func ReadTimeout(d config.Reader[time.Duration]) ServerOption {
	return func(srv *Server) {
		srv.ReadTimeout = d
	}
}

// ReadHeaderTimeout sets the maximum duration for reading request headers.
// The default is 2 seconds.
func ReadHeaderTimeout(d config.Reader[time.Duration]) ServerOption {
	return func(srv *Server) {
		srv.ReadHeaderTimeout = d
	}
}

// WriteTimeout sets the maximum duration before timing out writes of the
// response. The default is 10 seconds.
func WriteTimeout(d config.Reader[time.Duration]) ServerOption {
	return func(srv *Server) {
		srv.WriteTimeout = d
	}
}

// IdleTimeout sets how long keep-alive connections wait for the next
// request. The default is 120 seconds.
func IdleTimeout(d config.Reader[time.Duration]) ServerOption {
	return func(srv *Server) {
		srv.IdleTimeout = d
	}
}

// ShutdownTimeout bounds graceful shutdown. The default is 10 seconds.
func ShutdownTimeout(d config.Reader[time.Duration]) ServerOption {
	return func(srv *Server) {
		srv.ShutdownTimeout = d
	}
}

// ShutdownTimeoutFromEnv reads HTTP_SHUTDOWN_TIMEOUT as a duration.
func ShutdownTimeoutFromEnv() config.Reader[time.Duration] {
	return config.DurationFromString(config.Env("HTTP_SHUTDOWN_TIMEOUT"))
}

// NewServer creates a new Server with the given listener and options.
func NewServer(listener config.Reader[net.Listener], options ...ServerOption) Server {
	srv := Server{
		Listener:          listener,
		ReadTimeout:       config.EmptyReader[time.Duration](),
		ReadHeaderTimeout: config.EmptyReader[time.Duration](),
		WriteTimeout:      config.EmptyReader[time.Duration](),
		IdleTimeout:       config.EmptyReader[time.Duration](),
		ShutdownTimeout:   config.EmptyReader[time.Duration](),
	}
	for _, option := range options {
		option(&srv)
	}
	return srv
}

// App is a runnable HTTP server.
type App struct {
	ls              net.Listener
	srv             *http.Server
	shutdownTimeout time.Duration
}

// Run serves until ctx is cancelled and then shuts the server down gracefully.
func (a App) Run(ctx context.Context) error {
	p := pool.New().WithContext(ctx)

	p.Go(func(ctx context.Context) error {
		return a.srv.Serve(a.ls)
	})

	p.Go(func(ctx context.Context) error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()
		return a.srv.Shutdown(shutdownCtx)
	})

	err := p.Wait()
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Build creates an app.Builder of an [App] serving the handler built by b.
func Build(srv Server, b app.Builder[http.Handler]) app.Builder[App] {
	return app.Bind(b, func(h http.Handler) app.Builder[App] {
		return app.BuilderFunc[App](func(ctx context.Context) (App, error) {
			ln, err := config.Read(ctx, srv.Listener)
			if err != nil {
				return App{}, fmt.Errorf("http: failed to listen: %w", err)
			}

			httpServer := &http.Server{
				Handler:           h,
				ReadTimeout:       config.MustOr(ctx, 5*time.Second, srv.ReadTimeout),
				ReadHeaderTimeout: config.MustOr(ctx, 2*time.Second, srv.ReadHeaderTimeout),
				WriteTimeout:      config.MustOr(ctx, 10*time.Second, srv.WriteTimeout),
				IdleTimeout:       config.MustOr(ctx, 120*time.Second, srv.IdleTimeout),
			}

			return App{
				ls:              ln,
				srv:             httpServer,
				shutdownTimeout: config.MustOr(ctx, 10*time.Second, srv.ShutdownTimeout),
			}, nil
		})
	})
}
