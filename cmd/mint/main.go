/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Command mint generates a batch of invitation tokens and prints the scan URL
// of each one, ready to be rendered as QR codes.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/config"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain/model"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/event"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/mint"
)

func main() {
	flags := pflag.NewFlagSet("mint", pflag.ExitOnError)
	config.MintFlags(flags)
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.LoadMint(flags)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	tokens := mint.NewTokens(cfg.Count)
	if err := event.WriteTokens(cfg.Out, tokens); err != nil {
		log.Fatalf("failed to write tokens: %v", err)
	}

	if cfg.Event != "" {
		if err := register(cfg); err != nil {
			log.Fatalf("failed to register event %s: %v", cfg.Event, err)
		}
	}

	w := bufio.NewWriter(os.Stdout)
	for _, u := range mint.ScanURLs(cfg.BaseURL, tokens) {
		fmt.Fprintln(w, u)
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("failed to print scan URLs: %v", err)
	}
	log.Printf("wrote %d tokens to %s", len(tokens), cfg.Out)
}

func register(cfg config.MintConfig) error {
	registry, err := event.Load(cfg.RegistryPath)
	if err != nil {
		return err
	}
	err = registry.Create(cfg.Event, model.Event{Tokens: registryRelative(cfg.RegistryPath, cfg.Out)})
	if err != nil && !errors.Is(err, event.ErrEventExists) {
		return err
	}
	if cfg.Activate {
		if err := registry.SetActive(cfg.Event); err != nil {
			return err
		}
	}
	return registry.Save()
}

// registryRelative rewrites p so that it resolves from the registry's
// directory the same way it does from the working directory.
func registryRelative(registryPath, p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	dir, err := filepath.Abs(filepath.Dir(registryPath))
	if err != nil {
		return abs
	}
	if rel, err := filepath.Rel(dir, abs); err == nil {
		return rel
	}
	return abs
}
