/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS invites (
		token TEXT PRIMARY KEY,
		used BOOLEAN NOT NULL DEFAULT FALSE,
		used_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_invites_used ON invites(used);

	CREATE TABLE IF NOT EXISTS admissions (
		id BIGSERIAL PRIMARY KEY,
		token TEXT UNIQUE NOT NULL REFERENCES invites(token),
		admitted_at TIMESTAMPTZ NOT NULL
	);
`

// TokenRepository stores the tokens of one event in a PostgreSQL database.
// Row-level locking on the conditional UPDATE makes Redeem linearizable
// without any process-local lock, so several authorities may share a database.
type TokenRepository struct {
	DB *pgxpool.Pool
}

func NewTokenRepository(db *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{DB: db}
}

// Open connects to the database behind connString and creates the schema.
func Open(ctx context.Context, connString string) (*TokenRepository, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, unavailable("connect", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, unavailable("ping", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, unavailable("create schema", err)
	}
	return NewTokenRepository(pool), nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}

// Initialize inserts missing tokens as unused and returns how many were added.
func (r *TokenRepository) Initialize(ctx context.Context, tokens []string) (int, error) {
	batch := &pgx.Batch{}
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		batch.Queue(`INSERT INTO invites (token) VALUES ($1) ON CONFLICT (token) DO NOTHING`, t)
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return 0, unavailable("begin initialize", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	added := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, unavailable("insert token", err)
		}
		added += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, unavailable("close batch", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, unavailable("commit initialize", err)
	}
	return added, nil
}

// Redeem marks the token as used if it is present and unused.
func (r *TokenRepository) Redeem(ctx context.Context, token string) (model.RedeemResult, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return model.RedeemResult{}, unavailable("begin redeem", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE invites
		SET used = TRUE, used_at = now()
		WHERE token = $1 AND NOT used
	`, token)
	if err != nil {
		return model.RedeemResult{}, unavailable("update token", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invites WHERE token = $1)`, token).Scan(&exists); err != nil {
			return model.RedeemResult{}, unavailable("lookup token", err)
		}
		if !exists {
			return model.RedeemResult{Status: model.RedeemInvalid}, nil
		}
		return model.RedeemResult{Status: model.RedeemAlreadyUsed}, nil
	}

	if _, err := tx.Exec(ctx, `INSERT INTO admissions (token, admitted_at) VALUES ($1, now())`, token); err != nil {
		return model.RedeemResult{}, unavailable("insert admission", err)
	}

	var remaining int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM invites WHERE NOT used`).Scan(&remaining); err != nil {
		return model.RedeemResult{}, unavailable("count remaining", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.RedeemResult{}, unavailable("commit redeem", err)
	}
	return model.RedeemResult{Status: model.RedeemAdmitted, Remaining: remaining}, nil
}

func (r *TokenRepository) Counts(ctx context.Context) (model.Counts, error) {
	var c model.Counts
	err := r.DB.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE used)
		FROM invites
	`).Scan(&c.Total, &c.Used)
	if err != nil {
		return model.Counts{}, unavailable("count invites", err)
	}
	c.Remaining = c.Total - c.Used
	return c, nil
}

func (r *TokenRepository) RecentAdmissions(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	rows, err := r.DB.Query(ctx, `
		SELECT token
		FROM admissions
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, unavailable("query admissions", err)
	}
	recent, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, unavailable("scan admissions", err)
	}
	return recent, nil
}

func (r *TokenRepository) FindByID(ctx context.Context, token string) (*model.Token, error) {
	var t model.Token
	err := r.DB.QueryRow(ctx, `
		SELECT token, used, used_at
		FROM invites
		WHERE token = $1
	`, token).Scan(&t.ID, &t.Used, &t.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable("scan token", err)
	}
	return &t, nil
}

func (r *TokenRepository) Ping(ctx context.Context) error {
	if err := r.DB.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (r *TokenRepository) Close() error {
	r.DB.Close()
	return nil
}
