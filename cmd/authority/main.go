/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Command authority serves the admission authority for the active event.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/authority"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/config"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/event"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/infra"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/server"
)

func main() {
	flags := pflag.NewFlagSet("authority", pflag.ExitOnError)
	config.AuthorityFlags(flags)
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.LoadAuthority(flags)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg.Logger = log.New(os.Stderr, "[authority] ", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := event.Load(cfg.RegistryPath)
	if err != nil {
		log.Fatalf("failed to load event registry: %v", err)
	}

	a, err := authority.NewAuthority(registry, infra.OpenTokenStore, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to create authority: %v", err)
	}
	defer a.Close()
	if err := a.Init(ctx); err != nil {
		// The authority keeps running and answers NO_ACTIVE_EVENT until an
		// event can be activated.
		cfg.Logger.Printf("failed to activate event: %v", err)
	}

	if cfg.WatchRegistry {
		go func() {
			if err := registry.Watch(ctx, cfg.Logger, a.OnEventChange(ctx)); err != nil {
				cfg.Logger.Printf("failed to watch event registry: %v", err)
			}
		}()
	}

	srv, err := server.New(cfg, a, registry)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil {
			cfg.Logger.Printf("server stopped: %v", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			cfg.Logger.Printf("failed to shut down: %v", err)
		}
	}
}
