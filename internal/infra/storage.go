/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package infra

import (
	"context"
	"fmt"
	"strings"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain/service"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/infra/postgres"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/infra/sqlite"
)

// OpenTokenStore opens the token store named by handle. postgres:// and
// postgresql:// URLs select PostgreSQL, anything else is a SQLite file path.
func OpenTokenStore(ctx context.Context, handle string) (service.TokenStore, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, fmt.Errorf("%w: empty store handle", domain.ErrStoreUnavailable)
	}
	if strings.HasPrefix(handle, "postgres://") || strings.HasPrefix(handle, "postgresql://") {
		repo, err := postgres.Open(ctx, handle)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
	repo, err := sqlite.Open(ctx, strings.TrimPrefix(handle, "sqlite://"))
	if err != nil {
		return nil, err
	}
	return repo, nil
}
