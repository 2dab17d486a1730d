/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

const healthCheckTimeout = 2 * time.Second

type healthResponse struct {
	Status string       `json:"status" cbor:"status"`
	Event  string       `json:"event" cbor:"event"`
	Store  storeHealth  `json:"store" cbor:"store"`
	Memory memoryHealth `json:"memory" cbor:"memory"`
}

type storeHealth struct {
	Status       string `json:"status" cbor:"status"`
	ResponseTime int64  `json:"response_time_ms" cbor:"response_time_ms"`
}

type memoryHealth struct {
	UsedPercent float64 `json:"used_percent" cbor:"used_percent"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{
		Status: "healthy",
		Event:  h.authority.ActiveEvent(),
		Store:  storeHealth{Status: "healthy"},
	}

	start := time.Now()
	err := h.authority.Ping(ctx)
	resp.Store.ResponseTime = time.Since(start).Milliseconds()
	if err != nil {
		resp.Status = "unhealthy"
		resp.Store.Status = "unhealthy"
		if resp.Event == "" {
			resp.Store.Status = "no_active_event"
		}
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		resp.Memory.UsedPercent = vm.UsedPercent
	} else {
		h.logger.Printf("failed to read memory stats: %v", err)
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	h.writeValue(w, r, status, resp)
}
