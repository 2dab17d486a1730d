/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package scan

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/config"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain/model"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/util"
)

const (
	DefaultDebounceWindow = 1200 * time.Millisecond
	DefaultHistorySize    = 200
)

// Redeemer submits a token to the admission authority.
type Redeemer interface {
	Redeem(ctx context.Context, token string) (Verdict, error)
}

// Ledger records scan outcomes. Failures never block a scan.
type Ledger interface {
	Append(rec model.ScanRecord) error
	Clear() error
}

type Source string

const (
	SourceAuthority Source = "authority"
	// SourceLocal marks an ALREADY_ADMITTED answered from the station's own
	// confirmations. They belong to the event that admitted the tokens and are
	// dropped as soon as the authority answers for a different event; until
	// then a reused token id of the new event is still answered locally.
	SourceLocal Source = "local"
)

// Result describes one submitted scan.
type Result struct {
	Record model.ScanRecord
	Source Source
	// Remaining is set for admissions answered by the authority.
	Remaining *int
	// Err holds the failure behind an AUTHORITY_UNREACHABLE outcome.
	Err error
}

// Session owns one scanning station's short-term state: the debounce map, the
// tokens this station has seen admitted, and the recent history. It is never
// a source of truth for admission.
type Session struct {
	authority Redeemer
	ledger    Ledger
	window    time.Duration
	limit     int
	logger    *log.Logger
	now       func() time.Time

	mu            sync.Mutex
	lastSubmitted map[string]time.Time
	confirmed     util.Set[string]
	history       []model.ScanRecord

	// event is the event behind confirmed, as last reported by the authority.
	event string
}

// NewSession builds a session. ledger may be nil.
func NewSession(authority Redeemer, ledger Ledger, cfg config.ScannerConfig) *Session {
	window := cfg.DebounceWindow
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	limit := cfg.HistorySize
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		authority:     authority,
		ledger:        ledger,
		window:        window,
		limit:         limit,
		logger:        logger,
		now:           time.Now,
		lastSubmitted: make(map[string]time.Time),
		confirmed:     util.NewSet[string](),
	}
}

// Process handles one detection of a decoded QR payload. It reports false when
// the payload is empty or the same token was submitted within the debounce
// window; nothing is sent or recorded in that case.
func (s *Session) Process(ctx context.Context, raw string) (Result, bool) {
	token := ExtractToken(raw)
	if token == "" {
		return Result{}, false
	}

	s.mu.Lock()
	now := s.now()
	s.purge(now)
	if last, ok := s.lastSubmitted[token]; ok && now.Sub(last) < s.window {
		s.mu.Unlock()
		return Result{}, false
	}
	s.lastSubmitted[token] = now
	local := s.confirmed.Has(token)
	s.mu.Unlock()

	res := Result{Source: SourceLocal}
	if local {
		res.Record = model.ScanRecord{Timestamp: now, TokenID: token, Outcome: model.OutcomeAlreadyAdmitted}
	} else {
		res = s.submit(ctx, token)
	}

	s.mu.Lock()
	s.history = append(s.history, res.Record)
	if over := len(s.history) - s.limit; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
	s.mu.Unlock()

	if s.ledger != nil {
		if err := s.ledger.Append(res.Record); err != nil {
			s.logger.Printf("failed to append scan record: %v", err)
		}
	}
	return res, true
}

func (s *Session) submit(ctx context.Context, token string) Result {
	verdict, err := s.authority.Redeem(ctx, token)
	res := Result{
		Source: SourceAuthority,
		Record: model.ScanRecord{Timestamp: s.now(), TokenID: token},
	}
	if err != nil {
		s.logger.Printf("failed to redeem %s: %v", token, err)
		res.Record.Outcome = model.OutcomeAuthorityUnreachable
		res.Err = err
		return res
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if verdict.Event != "" && verdict.Event != s.event {
		if s.event != "" {
			s.logger.Printf("authority switched from event %s to %s; dropping %d local confirmations", s.event, verdict.Event, s.confirmed.Len())
			s.confirmed.Clear()
		}
		s.event = verdict.Event
	}
	switch verdict.Status {
	case model.RedeemAdmitted:
		s.confirmed.Add(token)
		remaining := verdict.Remaining
		res.Remaining = &remaining
		res.Record.Outcome = model.OutcomeAdmitted
	case model.RedeemAlreadyUsed:
		s.confirmed.Add(token)
		res.Record.Outcome = model.OutcomeAlreadyAdmitted
	default:
		s.confirmed.Delete(token)
		res.Record.Outcome = model.OutcomeInvalidToken
	}
	return res
}

// purge drops debounce entries that can no longer suppress a submission.
// Callers hold s.mu.
func (s *Session) purge(now time.Time) {
	for token, at := range s.lastSubmitted {
		if now.Sub(at) >= s.window {
			delete(s.lastSubmitted, token)
		}
	}
}

// Clear empties the ledger, the locally confirmed set and the history. The
// authority's token store is untouched.
func (s *Session) Clear() error {
	s.mu.Lock()
	s.confirmed.Clear()
	s.history = nil
	s.mu.Unlock()

	if s.ledger == nil {
		return nil
	}
	return s.ledger.Clear()
}

// History returns the most recent records, newest first.
func (s *Session) History(limit int) []model.ScanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]model.ScanRecord, 0, limit)
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.history[i])
	}
	return out
}

// Confirmed reports whether this station has seen token admitted.
func (s *Session) Confirmed(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed.Has(token)
}
