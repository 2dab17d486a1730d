/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "INVITRO"

// AuthorityFlags registers the authority's command-line flags and defaults.
func AuthorityFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.String("addr", "127.0.0.1:5000", "listen address")
	fs.String("registry", "data/events.yaml", "event registry file")
	fs.String("admin-pin-hash", "", "bcrypt hash of the admin PIN; empty disables admin changes")
	fs.StringSlice("allowed-origins", nil, "CORS origins allowed to call the API")
	fs.Duration("read-header-timeout", 5*time.Second, "HTTP read header timeout")
	fs.Bool("watch-registry", true, "re-activate when the registry file changes")
}

// ScannerFlags registers the scanning station's command-line flags and defaults.
func ScannerFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.String("authority-url", "http://127.0.0.1:5000", "admission authority base URL")
	fs.Duration("timeout", 2*time.Second, "per-request timeout")
	fs.Duration("debounce", 1200*time.Millisecond, "minimum interval between submissions of one token")
	fs.String("ledger", "scan_log_backup.csv", "activity ledger file")
	fs.String("station", "", "station identifier (default: hostname)")
	fs.Int("history", 200, "scan records kept in memory")
	fs.Bool("cbor", false, "ask the authority for CBOR responses")
}

// MintFlags registers the token generator's command-line flags and defaults.
func MintFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.Int("count", 500, "number of tokens to generate")
	fs.String("base-url", "http://127.0.0.1:5000/scan", "URL prefix encoded into each QR code")
	fs.String("out", "", "token CSV to write (default: <event>_invites.csv)")
	fs.String("event", "", "event to register the tokens under")
	fs.String("registry", "data/events.yaml", "event registry file")
	fs.Bool("activate", false, "make the event active")
}

// newViper layers .env, INVITRO_* environment variables, the optional config
// file and the parsed flags. Keys use underscores; flags use dashes.
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// LoadAuthority resolves the authority configuration. flags must have been
// registered with AuthorityFlags and parsed.
func LoadAuthority(flags *pflag.FlagSet) (AuthorityConfig, error) {
	v, err := newViper(flags)
	if err != nil {
		return AuthorityConfig{}, err
	}
	cfg := AuthorityConfig{
		Addr:              v.GetString("addr"),
		RegistryPath:      v.GetString("registry"),
		AdminPINHash:      v.GetString("admin_pin_hash"),
		AllowedOrigins:    v.GetStringSlice("allowed_origins"),
		ReadHeaderTimeout: v.GetDuration("read_header_timeout"),
		WatchRegistry:     v.GetBool("watch_registry"),
	}
	if cfg.RegistryPath == "" {
		return cfg, fmt.Errorf("registry path must not be empty")
	}
	return cfg, nil
}

// LoadScanner resolves the scanning station configuration.
func LoadScanner(flags *pflag.FlagSet) (ScannerConfig, error) {
	v, err := newViper(flags)
	if err != nil {
		return ScannerConfig{}, err
	}
	cfg := ScannerConfig{
		AuthorityURL:   v.GetString("authority_url"),
		Timeout:        v.GetDuration("timeout"),
		DebounceWindow: v.GetDuration("debounce"),
		LedgerPath:     v.GetString("ledger"),
		StationID:      v.GetString("station"),
		HistorySize:    v.GetInt("history"),
		UseCBOR:        v.GetBool("cbor"),
	}
	if cfg.StationID == "" {
		cfg.StationID, _ = os.Hostname()
	}
	if cfg.AuthorityURL == "" {
		return cfg, fmt.Errorf("authority URL must not be empty")
	}
	if cfg.Timeout <= 0 {
		return cfg, fmt.Errorf("timeout must be positive, got %s", cfg.Timeout)
	}
	return cfg, nil
}

// LoadMint resolves the token generator configuration.
func LoadMint(flags *pflag.FlagSet) (MintConfig, error) {
	v, err := newViper(flags)
	if err != nil {
		return MintConfig{}, err
	}
	cfg := MintConfig{
		Count:        v.GetInt("count"),
		BaseURL:      v.GetString("base_url"),
		Out:          v.GetString("out"),
		Event:        v.GetString("event"),
		RegistryPath: v.GetString("registry"),
		Activate:     v.GetBool("activate"),
	}
	if cfg.Count <= 0 {
		return cfg, fmt.Errorf("count must be positive, got %d", cfg.Count)
	}
	if cfg.Out == "" {
		if cfg.Event == "" {
			return cfg, fmt.Errorf("either --out or --event is required")
		}
		cfg.Out = cfg.Event + "_invites.csv"
	}
	if cfg.Activate && cfg.Event == "" {
		return cfg, fmt.Errorf("--activate requires --event")
	}
	return cfg, nil
}
