/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package scan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/authority"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/config"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain/model"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/event"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/infra"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/ledger"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/server"
)

// newAuthorityServer runs the real HTTP surface over a SQLite-backed event.
func newAuthorityServer(t *testing.T, tokens ...string) *httptest.Server {
	t.Helper()
	registry, err := event.Load(filepath.Join(t.TempDir(), "events.yaml"))
	require.NoError(t, err)
	if len(tokens) > 0 {
		require.NoError(t, registry.Create("gala", model.Event{}))
		ev, _ := registry.Lookup("gala")
		require.NoError(t, event.WriteTokens(ev.Tokens, tokens))
		require.NoError(t, registry.SetActive("gala"))
	}

	a, err := authority.NewAuthority(registry, infra.OpenTokenStore, nil)
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))
	s, err := server.New(config.AuthorityConfig{}, a, registry)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	return srv
}

func TestClient_RedeemAgainstAuthority(t *testing.T) {
	srv := newAuthorityServer(t, "A1B2C3D4E5F6", "T2")
	for _, useCBOR := range []bool{false, true} {
		c, err := NewClient(config.ScannerConfig{AuthorityURL: srv.URL + "/", UseCBOR: useCBOR})
		require.NoError(t, err)
		token := "A1B2C3D4E5F6"
		if useCBOR {
			token = "T2"
		}

		v, err := c.Redeem(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, model.RedeemAdmitted, v.Status)

		v, err = c.Redeem(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, model.RedeemAlreadyUsed, v.Status)

		v, err = c.Redeem(context.Background(), "UNKNOWN")
		require.NoError(t, err)
		assert.Equal(t, model.RedeemInvalid, v.Status)
	}

	c, err := NewClient(config.ScannerConfig{AuthorityURL: srv.URL})
	require.NoError(t, err)
	counts, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Counts{Total: 2, Used: 2, Remaining: 0}, counts)
}

func TestClient_NoActiveEvent(t *testing.T) {
	srv := newAuthorityServer(t)
	c, err := NewClient(config.ScannerConfig{AuthorityURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Redeem(context.Background(), "T1")
	require.ErrorIs(t, err, domain.ErrNoActiveEvent)
}

func TestClient_StoreUnavailableIsNotADenial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"token store unavailable","code":"STORE_UNAVAILABLE"}`))
	}))
	defer srv.Close()

	c, err := NewClient(config.ScannerConfig{AuthorityURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Redeem(context.Background(), "T1")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	s := NewSession(c, nil, config.ScannerConfig{})
	res, ok := s.Process(context.Background(), "T1")
	require.True(t, ok)
	assert.Equal(t, model.OutcomeAuthorityUnreachable, res.Record.Outcome)
	assert.ErrorIs(t, res.Err, domain.ErrStoreUnavailable)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewClient(config.ScannerConfig{AuthorityURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Redeem(context.Background(), "T1")
	require.ErrorIs(t, err, domain.ErrAuthorityUnreachable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(config.ScannerConfig{AuthorityURL: url})
	require.NoError(t, err)
	_, err = c.Redeem(context.Background(), "T1")
	require.ErrorIs(t, err, domain.ErrAuthorityUnreachable)
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient(config.ScannerConfig{})
	require.Error(t, err)
	_, err = NewClient(config.ScannerConfig{AuthorityURL: "ftp://host"})
	require.Error(t, err)
}

func TestSession_EndToEnd(t *testing.T) {
	srv := newAuthorityServer(t, "T1", "T2")
	c, err := NewClient(config.ScannerConfig{AuthorityURL: srv.URL})
	require.NoError(t, err)
	l, err := ledger.Open(filepath.Join(t.TempDir(), "scan_log_backup.csv"))
	require.NoError(t, err)

	clock := &fakeClock{t: time.Now()}
	s := NewSession(c, l, config.ScannerConfig{})
	s.now = clock.Now

	res, ok := s.Process(context.Background(), srv.URL+"/scan/T1")
	require.True(t, ok)
	assert.Equal(t, model.OutcomeAdmitted, res.Record.Outcome)
	require.NotNil(t, res.Remaining)
	assert.Equal(t, 1, *res.Remaining)

	_, ok = s.Process(context.Background(), "T1")
	assert.False(t, ok)

	// A second station learns the outcome from the authority.
	other := NewSession(c, nil, config.ScannerConfig{})
	res, ok = other.Process(context.Background(), "T1")
	require.True(t, ok)
	assert.Equal(t, model.OutcomeAlreadyAdmitted, res.Record.Outcome)
	assert.Equal(t, SourceAuthority, res.Source)

	records, err := l.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "T1", records[0].TokenID)
}

func TestSession_ForeignPayloadsAreInvalid(t *testing.T) {
	srv := newAuthorityServer(t, "T1")
	c, err := NewClient(config.ScannerConfig{AuthorityURL: srv.URL})
	require.NoError(t, err)
	s := NewSession(c, nil, config.ScannerConfig{})

	for _, raw := range []string{"www.example.com/promo", "..", ".", "T1/extra", "50% off", "a?b#c"} {
		res, ok := s.Process(context.Background(), raw)
		require.True(t, ok, raw)
		assert.Equal(t, model.OutcomeInvalidToken, res.Record.Outcome, raw)
		assert.NoError(t, res.Err, raw)
	}

	counts, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Used)
}

func TestClient_TokensWithPathCharacters(t *testing.T) {
	srv := newAuthorityServer(t, "A/B", "v1.2", "..")
	c, err := NewClient(config.ScannerConfig{AuthorityURL: srv.URL})
	require.NoError(t, err)

	for _, token := range []string{"A/B", "v1.2", ".."} {
		v, err := c.Redeem(context.Background(), token)
		require.NoError(t, err, token)
		assert.Equal(t, model.RedeemAdmitted, v.Status, token)
		assert.Equal(t, "gala", v.Event, token)

		v, err = c.Redeem(context.Background(), token)
		require.NoError(t, err, token)
		assert.Equal(t, model.RedeemAlreadyUsed, v.Status, token)
	}
}
