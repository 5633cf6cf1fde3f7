package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"politerm/internal/logging"
)

const httpServerShutdownTimeout = 5 * time.Second

type ManagedServer struct {
	Name     string
	Serve    func() error
	Shutdown func(context.Context) error
}

type ServerRunner struct {
	Logger          *logging.Logger
	ShutdownTimeout time.Duration
}

type serverError struct {
	name string
	err  error
}

// Run serves until one server fails or stop is done, then shuts every server
// down.
func (runner *ServerRunner) Run(stop context.Context, servers ...ManagedServer) *serverError {
	started := 0
	errorsChan := make(chan serverError, len(servers))
	for _, server := range servers {
		if server.Serve == nil {
			continue
		}
		started++
		server := server
		go func() {
			errorsChan <- serverError{name: server.Name, err: server.Serve()}
		}()
	}
	if started == 0 {
		return nil
	}

	var initialError *serverError
	select {
	case err := <-errorsChan:
		initialError = &err
	case <-stop.Done():
	}
	runner.logServerError(initialError)

	timeout := runner.ShutdownTimeout
	if timeout <= 0 {
		timeout = httpServerShutdownTimeout
	}
	shutdownContext, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, server := range servers {
		if server.Shutdown == nil {
			continue
		}
		if err := server.Shutdown(shutdownContext); err != nil {
			runner.Logger.Warn(fmt.Sprintf("%s server shutdown failed", server.Name), map[string]string{
				"error": err.Error(),
			})
		}
	}

	pending := started
	if initialError != nil {
		pending--
	}
	for i := 0; i < pending; i++ {
		select {
		case err := <-errorsChan:
			runner.logServerError(&err)
		case <-time.After(timeout):
			return initialError
		}
	}
	return initialError
}

func (runner *ServerRunner) logServerError(serverErr *serverError) {
	if serverErr == nil || serverErr.err == nil || errors.Is(serverErr.err, http.ErrServerClosed) {
		return
	}
	runner.Logger.Error("http server stopped", map[string]string{
		"server": serverErr.name,
		"error":  serverErr.err.Error(),
	})
}

// startHTTPServer serves handler on addr in the background. The returned
// func shuts the server down and waits for it.
func startHTTPServer(name, addr string, handler http.Handler, logger *logging.Logger) func() {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	stopContext, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	runner := &ServerRunner{Logger: logger}
	go func() {
		defer close(done)
		runner.Run(stopContext, ManagedServer{
			Name:     name,
			Serve:    server.ListenAndServe,
			Shutdown: server.Shutdown,
		})
	}()
	logger.Info(name+" listening", map[string]string{"addr": addr})
	return func() {
		stop()
		<-done
	}
}
