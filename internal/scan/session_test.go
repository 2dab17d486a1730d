/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package scan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/config"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain/model"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/ledger"
)

type fakeAuthority struct {
	mu      sync.Mutex
	calls   []string
	used    map[string]bool
	valid   map[string]bool
	event   string
	failing bool
}

func newFakeAuthority(tokens ...string) *fakeAuthority {
	f := &fakeAuthority{used: map[string]bool{}, valid: map[string]bool{}}
	for _, t := range tokens {
		f.valid[t] = true
	}
	return f
}

func (f *fakeAuthority) Redeem(_ context.Context, token string) (Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, token)
	if f.failing {
		return Verdict{}, fmt.Errorf("%w: connection refused", domain.ErrAuthorityUnreachable)
	}
	switch {
	case !f.valid[token]:
		return Verdict{Status: model.RedeemInvalid, Event: f.event}, nil
	case f.used[token]:
		return Verdict{Status: model.RedeemAlreadyUsed, Event: f.event}, nil
	}
	f.used[token] = true
	remaining := 0
	for t := range f.valid {
		if !f.used[t] {
			remaining++
		}
	}
	return Verdict{Status: model.RedeemAdmitted, Remaining: remaining, Event: f.event}, nil
}

// switchEvent replaces the served token set, as an event switch does.
func (f *fakeAuthority) switchEvent(name string, tokens ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.event = name
	f.used = map[string]bool{}
	f.valid = map[string]bool{}
	for _, t := range tokens {
		f.valid[t] = true
	}
}

func (f *fakeAuthority) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type failingLedger struct{ appends int }

func (l *failingLedger) Append(model.ScanRecord) error { l.appends++; return errors.New("disk full") }
func (l *failingLedger) Clear() error                  { return errors.New("disk full") }

func newTestSession(t *testing.T, auth Redeemer) (*Session, *fakeClock, *ledger.Ledger) {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "scan_log_backup.csv"))
	require.NoError(t, err)
	clock := &fakeClock{t: time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)}
	s := NewSession(auth, l, config.ScannerConfig{})
	s.now = clock.Now
	return s, clock, l
}

func TestSession_DebounceWithinWindow(t *testing.T) {
	auth := newFakeAuthority("A1B2C3D4E5F6")
	s, clock, _ := newTestSession(t, auth)

	res, ok := s.Process(context.Background(), "A1B2C3D4E5F6")
	require.True(t, ok)
	assert.Equal(t, model.OutcomeAdmitted, res.Record.Outcome)
	require.NotNil(t, res.Remaining)
	assert.Equal(t, 0, *res.Remaining)

	for i := 0; i < 10; i++ {
		clock.Advance(100 * time.Millisecond)
		_, ok = s.Process(context.Background(), "A1B2C3D4E5F6")
		assert.False(t, ok)
	}
	assert.Equal(t, 1, auth.callCount())
}

func TestSession_ResubmitsAfterWindow(t *testing.T) {
	auth := newFakeAuthority("T1")
	s, clock, _ := newTestSession(t, auth)

	res, ok := s.Process(context.Background(), "NOPE")
	require.True(t, ok)
	assert.Equal(t, model.OutcomeInvalidToken, res.Record.Outcome)

	clock.Advance(DefaultDebounceWindow - time.Millisecond)
	_, ok = s.Process(context.Background(), "NOPE")
	assert.False(t, ok)

	clock.Advance(2 * time.Millisecond)
	res, ok = s.Process(context.Background(), "NOPE")
	require.True(t, ok)
	assert.Equal(t, SourceAuthority, res.Source)
	assert.Equal(t, 2, auth.callCount())
}

func TestSession_LocalConfirmationShortCircuits(t *testing.T) {
	auth := newFakeAuthority("T1")
	s, clock, l := newTestSession(t, auth)

	_, ok := s.Process(context.Background(), "http://127.0.0.1:5000/scan/T1")
	require.True(t, ok)
	assert.True(t, s.Confirmed("T1"))

	clock.Advance(2 * time.Second)
	res, ok := s.Process(context.Background(), "T1")
	require.True(t, ok)
	assert.Equal(t, SourceLocal, res.Source)
	assert.Equal(t, model.OutcomeAlreadyAdmitted, res.Record.Outcome)
	assert.Equal(t, 1, auth.callCount())

	records, err := l.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.OutcomeAdmitted, records[0].Outcome)
	assert.Equal(t, model.OutcomeAlreadyAdmitted, records[1].Outcome)
}

func TestSession_AuthorityAnswerOverridesLocalBelief(t *testing.T) {
	auth := newFakeAuthority("T1")
	auth.used["T1"] = true // admitted at another station
	s, _, _ := newTestSession(t, auth)

	res, ok := s.Process(context.Background(), "T1")
	require.True(t, ok)
	assert.Equal(t, model.OutcomeAlreadyAdmitted, res.Record.Outcome)
	assert.True(t, s.Confirmed("T1"))

	assert.Equal(t, SourceAuthority, res.Source)
}

func TestSession_UnreachableIsDistinctAndRetryable(t *testing.T) {
	auth := newFakeAuthority("T1")
	auth.failing = true
	s, clock, _ := newTestSession(t, auth)

	res, ok := s.Process(context.Background(), "T1")
	require.True(t, ok)
	assert.Equal(t, model.OutcomeAuthorityUnreachable, res.Record.Outcome)
	assert.Equal(t, "SERVER ERROR", res.Record.Outcome.Banner())
	assert.ErrorIs(t, res.Err, domain.ErrAuthorityUnreachable)
	assert.False(t, s.Confirmed("T1"))

	clock.Advance(500 * time.Millisecond)
	_, ok = s.Process(context.Background(), "T1")
	assert.False(t, ok)

	auth.mu.Lock()
	auth.failing = false
	auth.mu.Unlock()
	clock.Advance(time.Second)
	res, ok = s.Process(context.Background(), "T1")
	require.True(t, ok)
	assert.Equal(t, model.OutcomeAdmitted, res.Record.Outcome)
	assert.Equal(t, 2, auth.callCount())
}

func TestSession_LedgerFailureDoesNotBlockScan(t *testing.T) {
	auth := newFakeAuthority("T1")
	l := &failingLedger{}
	s := NewSession(auth, l, config.ScannerConfig{})

	res, ok := s.Process(context.Background(), "T1")
	require.True(t, ok)
	assert.Equal(t, model.OutcomeAdmitted, res.Record.Outcome)
	assert.Equal(t, 1, l.appends)
	require.Len(t, s.History(0), 1)
}

func TestSession_IgnoresEmptyPayloads(t *testing.T) {
	auth := newFakeAuthority()
	s, _, _ := newTestSession(t, auth)

	for _, raw := range []string{"", "   ", "http://127.0.0.1:5000/"} {
		_, ok := s.Process(context.Background(), raw)
		assert.False(t, ok, raw)
	}
	assert.Zero(t, auth.callCount())
}

func TestSession_Clear(t *testing.T) {
	auth := newFakeAuthority("T1")
	s, clock, l := newTestSession(t, auth)

	_, ok := s.Process(context.Background(), "T1")
	require.True(t, ok)
	require.NoError(t, s.Clear())

	records, err := l.Records()
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, s.History(0))
	assert.False(t, s.Confirmed("T1"))

	// The debounce map survives a clear.
	_, ok = s.Process(context.Background(), "T1")
	assert.False(t, ok)

	clock.Advance(2 * time.Second)
	res, ok := s.Process(context.Background(), "T1")
	require.True(t, ok)
	assert.Equal(t, SourceAuthority, res.Source)
	assert.Equal(t, model.OutcomeAlreadyAdmitted, res.Record.Outcome)
}

func TestSession_HistoryIsBounded(t *testing.T) {
	auth := newFakeAuthority()
	s := NewSession(auth, nil, config.ScannerConfig{HistorySize: 3})

	for i := 0; i < 5; i++ {
		_, ok := s.Process(context.Background(), fmt.Sprintf("T%d", i))
		require.True(t, ok)
	}
	history := s.History(0)
	require.Len(t, history, 3)
	assert.Equal(t, "T4", history[0].TokenID)
	assert.Equal(t, "T2", history[2].TokenID)
	assert.Len(t, s.History(2), 2)
}

func TestSession_EventSwitchDropsLocalConfirmations(t *testing.T) {
	auth := newFakeAuthority()
	auth.switchEvent("gala", "T1", "T2")
	s, clock, _ := newTestSession(t, auth)

	res, ok := s.Process(context.Background(), "T1")
	require.True(t, ok)
	assert.Equal(t, model.OutcomeAdmitted, res.Record.Outcome)
	assert.True(t, s.Confirmed("T1"))

	// The next event reuses the token id T1.
	auth.switchEvent("expo", "T1", "E1")
	clock.Advance(2 * time.Second)

	res, ok = s.Process(context.Background(), "T1")
	require.True(t, ok)
	assert.Equal(t, SourceLocal, res.Source)

	res, ok = s.Process(context.Background(), "E1")
	require.True(t, ok)
	assert.Equal(t, model.OutcomeAdmitted, res.Record.Outcome)
	assert.False(t, s.Confirmed("T1"))
	assert.True(t, s.Confirmed("E1"))

	clock.Advance(2 * time.Second)
	res, ok = s.Process(context.Background(), "T1")
	require.True(t, ok)
	assert.Equal(t, SourceAuthority, res.Source)
	assert.Equal(t, model.OutcomeAdmitted, res.Record.Outcome)
}

func TestSession_SameEventKeepsLocalConfirmations(t *testing.T) {
	auth := newFakeAuthority()
	auth.switchEvent("gala", "T1", "T2")
	s, _, _ := newTestSession(t, auth)

	_, ok := s.Process(context.Background(), "T1")
	require.True(t, ok)
	_, ok = s.Process(context.Background(), "T2")
	require.True(t, ok)
	assert.True(t, s.Confirmed("T1"))
	assert.True(t, s.Confirmed("T2"))
}
