/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package config

import (
	"log"
	"time"
)

// AuthorityConfig captures the tunables required to start the admission authority.
type AuthorityConfig struct {
	Addr              string
	RegistryPath      string
	AdminPINHash      string
	AllowedOrigins    []string
	ReadHeaderTimeout time.Duration
	WatchRegistry     bool
	Logger            *log.Logger
}

// ScannerConfig captures the tunables of one scanning station.
type ScannerConfig struct {
	AuthorityURL   string
	Timeout        time.Duration
	DebounceWindow time.Duration
	LedgerPath     string
	StationID      string
	HistorySize    int
	UseCBOR        bool
	Logger         *log.Logger
}

// MintConfig captures the parameters of one token generation run.
type MintConfig struct {
	Count        int
	BaseURL      string
	Out          string
	Event        string
	RegistryPath string
	Activate     bool
}
