/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package authority

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain/model"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain/service"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/event"
)

// DashboardRecentLimit bounds recent_used on the admin dashboard.
const DashboardRecentLimit = 20

// StoreOpener turns an event's store handle into an open TokenStore.
type StoreOpener func(ctx context.Context, handle string) (service.TokenStore, error)

// Authority answers redeem and stats requests for the active event.
//
// The active store is a capability installed by Activate and replaced only
// on an explicit switch; requests never consult the registry.
type Authority struct {
	events  service.EventSource
	open    StoreOpener
	logger  *log.Logger
	metrics *Metrics
	feed    *Feed

	// switching serializes Activate/Deactivate so two switches never open
	// stores concurrently
	switching sync.Mutex

	// mu guards the capability. Requests hold it shared for their whole
	// store call, so a switch waits for in-flight redemptions.
	mu    sync.RWMutex
	event model.Event
	store service.TokenStore
}

func NewAuthority(events service.EventSource, open StoreOpener, logger *log.Logger) (*Authority, error) {
	if events == nil {
		return nil, fmt.Errorf("event source must not be nil")
	}
	if open == nil {
		return nil, fmt.Errorf("store opener must not be nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Authority{
		events:  events,
		open:    open,
		logger:  logger,
		metrics: NewMetrics(),
		feed:    NewFeed(),
	}, nil
}

// Init activates the event currently selected in the event source. Having
// no selection is not an error: the authority serves, but refuses
// redemptions with ErrNoActiveEvent until an event is activated.
func (a *Authority) Init(ctx context.Context) error {
	ev, ok := a.events.Active()
	if !ok {
		a.logger.Printf("no active event selected; redemption disabled until one is activated")
		return nil
	}
	return a.Activate(ctx, ev)
}

// Activate opens the event's store, imports its token file and installs the
// store as the active capability. Re-activating the active event with the
// same store and token file is a no-op; a changed entry reopens it.
func (a *Authority) Activate(ctx context.Context, ev model.Event) error {
	a.switching.Lock()
	defer a.switching.Unlock()

	a.mu.RLock()
	same := a.store != nil && a.event == ev
	a.mu.RUnlock()
	if same {
		a.logger.Printf("event %s already active", ev.Name)
		return nil
	}

	tokens, err := event.LoadTokens(ev.Tokens)
	if err != nil {
		return fmt.Errorf("load tokens of %s: %w", ev.Name, err)
	}

	store, err := a.open(ctx, ev.Store)
	if err != nil {
		a.logger.Printf("failed to open store of event %s: %v", ev.Name, err)
		return err
	}
	added, err := store.Initialize(ctx, tokens)
	if err != nil {
		store.Close()
		a.logger.Printf("failed to initialize store of event %s: %v", ev.Name, err)
		return err
	}

	a.mu.Lock()
	old := a.store
	a.event = ev
	a.store = store
	a.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			a.logger.Printf("failed closing previous store: %v", err)
		}
	}

	a.metrics.activations.Inc()
	if counts, err := store.Counts(ctx); err == nil {
		a.metrics.remaining.Set(float64(counts.Remaining))
		a.logger.Printf("event %s active: %d tokens (%d new), %d remaining", ev.Name, counts.Total, added, counts.Remaining)
	}
	return nil
}

// ActivateByName resolves name through the event source and activates it.
func (a *Authority) ActivateByName(ctx context.Context, name string) error {
	ev, ok := a.events.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownEvent, name)
	}
	return a.Activate(ctx, ev)
}

// Deactivate drops the active store. Later redemptions fail with ErrNoActiveEvent.
func (a *Authority) Deactivate() {
	a.switching.Lock()
	defer a.switching.Unlock()

	a.mu.Lock()
	old := a.store
	name := a.event.Name
	a.store = nil
	a.event = model.Event{}
	a.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			a.logger.Printf("failed closing store: %v", err)
		}
		a.logger.Printf("event %s deactivated", name)
	}
}

// OnEventChange adapts Activate/Deactivate to the event registry watcher.
func (a *Authority) OnEventChange(ctx context.Context) func(model.Event, bool) {
	return func(ev model.Event, ok bool) {
		if !ok {
			a.Deactivate()
			return
		}
		if err := a.Activate(ctx, ev); err != nil {
			a.logger.Printf("failed to switch to event %s: %v", ev.Name, err)
		}
	}
}

// ActiveEvent returns the name of the active event, or "" if none.
func (a *Authority) ActiveEvent() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.event.Name
}

// withStore runs fn against the active store while holding the capability.
func (a *Authority) withStore(fn func(name string, store service.TokenStore) error) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.store == nil {
		return domain.ErrNoActiveEvent
	}
	return fn(a.event.Name, a.store)
}

// Redeem redeems token against the active event's store.
func (a *Authority) Redeem(ctx context.Context, token string) (model.RedeemResult, error) {
	token = strings.TrimSpace(token)
	start := time.Now()

	var res model.RedeemResult
	var eventName string
	err := a.withStore(func(name string, store service.TokenStore) error {
		eventName = name
		if token == "" {
			res = model.RedeemResult{Status: model.RedeemInvalid}
			return nil
		}
		var err error
		res, err = store.Redeem(ctx, token)
		return err
	})
	a.metrics.observe(res, err, time.Since(start))

	if err != nil {
		if !errors.Is(err, domain.ErrNoActiveEvent) {
			a.logger.Printf("failed to redeem token %s: %v", token, err)
		}
		return model.RedeemResult{}, err
	}

	if res.Status == model.RedeemAdmitted {
		a.metrics.remaining.Set(float64(res.Remaining))
		a.feed.Publish(model.Admission{
			Event:      eventName,
			Token:      token,
			Remaining:  res.Remaining,
			AdmittedAt: time.Now().UTC(),
		})
		a.logger.Printf("admitted %s (%d remaining)", token, res.Remaining)
	}
	return res, nil
}

// Stats returns the counts of the active event.
func (a *Authority) Stats(ctx context.Context) (model.Counts, error) {
	var counts model.Counts
	err := a.withStore(func(_ string, store service.TokenStore) error {
		var err error
		counts, err = store.Counts(ctx)
		return err
	})
	return counts, err
}

// Dashboard returns the counts plus the most recent admissions.
func (a *Authority) Dashboard(ctx context.Context) (model.DashboardResponse, error) {
	var dash model.DashboardResponse
	err := a.withStore(func(_ string, store service.TokenStore) error {
		counts, err := store.Counts(ctx)
		if err != nil {
			return err
		}
		recent, err := store.RecentAdmissions(ctx, DashboardRecentLimit)
		if err != nil {
			return err
		}
		dash = model.DashboardResponse{Counts: counts, RecentUsed: recent}
		return nil
	})
	return dash, err
}

// Token looks up the state of token in the active event. It returns
// domain.ErrInvalidToken when the token is not part of the event.
func (a *Authority) Token(ctx context.Context, token string) (*model.Token, error) {
	var t *model.Token
	err := a.withStore(func(_ string, store service.TokenStore) error {
		var err error
		t, err = store.FindByID(ctx, strings.TrimSpace(token))
		return err
	})
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.ErrInvalidToken
	}
	return t, nil
}

// Ping checks that the active store is reachable.
func (a *Authority) Ping(ctx context.Context) error {
	return a.withStore(func(_ string, store service.TokenStore) error {
		return store.Ping(ctx)
	})
}

func (a *Authority) Metrics() *Metrics {
	return a.metrics
}

func (a *Authority) Feed() *Feed {
	return a.feed
}

// Close releases the active store.
func (a *Authority) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	a.event = model.Event{}
	return err
}
