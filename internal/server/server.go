/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/authority"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/config"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/event"
)

// Server wires the HTTP listener and request handling stack.
type Server struct {
	cfg     config.AuthorityConfig
	handler *handler
	http    *http.Server
	logger  *log.Logger
}

// New constructs a Server serving a. registry may be nil, in which case the
// event switch endpoint is disabled.
func New(cfg config.AuthorityConfig, a *authority.Authority, registry *event.Registry) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if a == nil {
		return nil, errors.New("authority must not be nil")
	}

	live := newLiveFeed(a.Feed(), cfg.AllowedOrigins, logger)
	h, err := newHandler(a, registry, cfg.AdminPINHash, live, logger)
	if err != nil {
		return nil, err
	}

	var root http.Handler = h
	if len(cfg.AllowedOrigins) > 0 {
		root = cors.New(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Accept", "Content-Type", adminPINHeader},
		}).Handler(h)
	}

	readHeaderTimeout := cfg.ReadHeaderTimeout
	if readHeaderTimeout == 0 {
		readHeaderTimeout = 5 * time.Second
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           root,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return &Server{
		cfg:     cfg,
		handler: h,
		http:    httpSrv,
		logger:  logger,
	}, nil
}

// Handler exposes the routing stack, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe starts the HTTP server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	s.logger.Printf("Run admission authority on %s.", s.http.Addr)

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown closes live feed connections and gracefully takes down the HTTP
// server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.handler.live.close()
	return s.http.Shutdown(ctx)
}
