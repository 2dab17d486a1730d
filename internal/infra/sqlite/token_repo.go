/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain/model"
)

// TokenRepository handles token persistence of one event.
type TokenRepository struct {
	db  *sql.DB
	now func() time.Time

	// mu serializes redemptions of this process.
	mu sync.Mutex
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db, now: time.Now}
}

// Open initializes the database at dbPath and returns a repository owning it.
func Open(ctx context.Context, dbPath string) (*TokenRepository, error) {
	db, err := InitDB(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return NewTokenRepository(db), nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}

// Initialize inserts the tokens that are not yet present and returns how
// many were added. Existing rows, used or not, are left untouched.
func (r *TokenRepository) Initialize(ctx context.Context, tokens []string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("begin initialize", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO invites (token) VALUES (?)`)
	if err != nil {
		return 0, unavailable("prepare insert", err)
	}
	defer stmt.Close()

	added := 0
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		res, err := stmt.ExecContext(ctx, t)
		if err != nil {
			return 0, unavailable("insert token", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, unavailable("insert token", err)
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, unavailable("commit initialize", err)
	}
	return added, nil
}

// Redeem marks the token as used if it is present and unused.
func (r *TokenRepository) Redeem(ctx context.Context, token string) (model.RedeemResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.RedeemResult{}, unavailable("begin redeem", err)
	}
	defer tx.Rollback()

	now := r.now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE invites
		SET used = 1, used_at = ?
		WHERE token = ? AND used = 0
	`, now, token)
	if err != nil {
		return model.RedeemResult{}, unavailable("update token", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.RedeemResult{}, unavailable("update token", err)
	}

	if n == 0 {
		var used bool
		err := tx.QueryRowContext(ctx, `SELECT used FROM invites WHERE token = ?`, token).Scan(&used)
		if errors.Is(err, sql.ErrNoRows) {
			return model.RedeemResult{Status: model.RedeemInvalid}, nil
		}
		if err != nil {
			return model.RedeemResult{}, unavailable("scan token", err)
		}
		return model.RedeemResult{Status: model.RedeemAlreadyUsed}, nil
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO admissions (token, admitted_at) VALUES (?, ?)`, token, now); err != nil {
		return model.RedeemResult{}, unavailable("insert admission", err)
	}

	var remaining int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM invites WHERE used = 0`).Scan(&remaining); err != nil {
		return model.RedeemResult{}, unavailable("count remaining", err)
	}

	if err := tx.Commit(); err != nil {
		return model.RedeemResult{}, unavailable("commit redeem", err)
	}
	return model.RedeemResult{Status: model.RedeemAdmitted, Remaining: remaining}, nil
}

// Counts returns total, used and remaining in a single statement.
func (r *TokenRepository) Counts(ctx context.Context) (model.Counts, error) {
	var c model.Counts
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(used), 0) FROM invites`).Scan(&c.Total, &c.Used)
	if err != nil {
		return model.Counts{}, unavailable("count invites", err)
	}
	c.Remaining = c.Total - c.Used
	return c, nil
}

// RecentAdmissions returns the most recently admitted tokens, newest first.
func (r *TokenRepository) RecentAdmissions(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT token
		FROM admissions
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, unavailable("query admissions", err)
	}
	defer rows.Close()

	recent := make([]string, 0, limit)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, unavailable("scan admission", err)
		}
		recent = append(recent, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate admissions", err)
	}
	return recent, nil
}

// FindByID returns a token by its id, or nil if it is not part of the event.
func (r *TokenRepository) FindByID(ctx context.Context, token string) (*model.Token, error) {
	const q = `
		SELECT token, used, used_at
		FROM invites
		WHERE token = ?
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, q, token)
	var t model.Token
	var usedAt sql.NullTime
	if err := row.Scan(&t.ID, &t.Used, &usedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable("scan token", err)
	}
	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	return &t, nil
}

func (r *TokenRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (r *TokenRepository) Close() error {
	return CloseDB(r.db)
}
