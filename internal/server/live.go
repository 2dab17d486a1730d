/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/authority"
)

const (
	liveBuffer       = 64
	liveWriteTimeout = 5 * time.Second
)

// liveFeed streams admissions to dashboard websockets.
type liveFeed struct {
	feed     *authority.Feed
	upgrader websocket.Upgrader
	logger   *log.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func newLiveFeed(feed *authority.Feed, allowedOrigins []string, logger *log.Logger) *liveFeed {
	l := &liveFeed{
		feed:   feed,
		logger: logger,
		done:   make(chan struct{}),
	}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]struct{}, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[o] = struct{}{}
		}
		l.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}
	return l
}

func (l *liveFeed) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Printf("failed to upgrade live feed connection: %v", err)
		return
	}
	defer conn.Close()

	ch, cancel := l.feed.Subscribe(liveBuffer)
	defer cancel()

	// Clients only listen; a read error means they went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		select {
		case adm, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteJSON(adm); err != nil {
				return
			}
		case <-l.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
	}
}

func (l *liveFeed) close() {
	l.closeOnce.Do(func() { close(l.done) })
}
