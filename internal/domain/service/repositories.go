/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package service

import (
	"context"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain/model"
)

// TokenStore defines the interface for the per-event token persistence.
//
// Redeem must be linearizable per token: among any number of concurrent
// callers for the same unused token exactly one observes RedeemAdmitted.
// Infrastructure failures are reported wrapping domain.ErrStoreUnavailable.
type TokenStore interface {
	// Initialize inserts each token as unused if absent. Used tokens stay used.
	Initialize(ctx context.Context, tokens []string) (int, error)
	Redeem(ctx context.Context, token string) (model.RedeemResult, error)
	Counts(ctx context.Context) (model.Counts, error)
	// RecentAdmissions returns admitted token ids, most recent first.
	RecentAdmissions(ctx context.Context, limit int) ([]string, error)
	FindByID(ctx context.Context, token string) (*model.Token, error)
	Ping(ctx context.Context) error
	Close() error
}

// EventSource resolves the active event to a concrete store handle.
type EventSource interface {
	Active() (model.Event, bool)
	Lookup(name string) (model.Event, bool)
}
