/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package authority

import (
	"sync"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain/model"
)

// Feed fans admissions out to live subscribers. Publish never blocks the
// redemption path: a subscriber whose buffer is full misses the message.
type Feed struct {
	mu   sync.Mutex
	subs map[chan model.Admission]struct{}
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[chan model.Admission]struct{})}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel; extra calls are no-ops.
func (f *Feed) Subscribe(buffer int) (<-chan model.Admission, func()) {
	ch := make(chan model.Admission, buffer)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *Feed) Publish(a model.Admission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- a:
		default:
		}
	}
}

func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
