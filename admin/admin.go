// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

// Package admin serves operational endpoints (metrics, liveness, pprof) on a
// listener separate from the public API.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer returns an admin Server which will listen on addr.
func NewServer(addr string) *Server {
	timeout, _ := time.ParseDuration("45s")
	s := &Server{
		liveChecks: make(map[string]func() error),
	}
	s.svc = &http.Server{
		Addr:         addr,
		Handler:      s.handler(),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		IdleTimeout:  timeout,
	}
	return s
}

// Server represents a holder around a net/http Server which
// is used for admin endpoints. (i.e. metrics, healthcheck)
type Server struct {
	svc *http.Server

	mu         sync.RWMutex
	liveChecks map[string]func() error
}

func (s *Server) BindAddress() string {
	return s.svc.Addr
}

// Handler returns the admin routes, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.svc.Handler
}

// AddLivenessCheck registers f to be called on every GET /live. A non-nil
// error marks the process as unhealthy.
func (s *Server) AddLivenessCheck(name string, f func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveChecks[name] = f
}

// Listen brings up the admin HTTP service. This call blocks.
func (s *Server) Listen() error {
	if s == nil || s.svc == nil {
		return nil
	}
	return s.svc.ListenAndServe()
}

// Shutdown unbinds the HTTP server.
func (s *Server) Shutdown() {
	if s == nil || s.svc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.svc.Shutdown(ctx)
}

func (s *Server) handler() http.Handler {
	r := mux.NewRouter()

	// prometheus metrics
	r.Methods("GET").Path("/metrics").Handler(promhttp.Handler())

	r.Methods("GET").Path("/live").HandlerFunc(s.liveHandler)

	addProfileRoutes(r)

	return r
}

// liveHandler runs every liveness check and responds with each result,
// "good" or the error text. Any failure makes the response a 400.
func (s *Server) liveHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.liveChecks))
	for name := range s.liveChecks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make([]func() error, len(names))
	for i := range names {
		checks[i] = s.liveChecks[names[i]]
	}
	s.mu.RUnlock()

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for i := range names {
		if err := checks[i](); err != nil {
			status = http.StatusBadRequest
			results[names[i]] = err.Error()
			continue
		}
		results[names[i]] = "good"
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(results)
}
