/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import "time"

const (
	MsgAlreadyEntered = "Already entered"
	MsgInvalidToken   = "Invalid token"
)

// ScanResponse is the body of POST /scan/{token}.
type ScanResponse struct {
	Success   bool   `json:"success" cbor:"success"`
	Msg       string `json:"msg,omitempty" cbor:"msg,omitempty"`
	Remaining *int   `json:"remaining,omitempty" cbor:"remaining,omitempty"`
}

// DashboardResponse is the body of GET /admin/dashboard.
type DashboardResponse struct {
	Counts
	RecentUsed []string `json:"recent_used" cbor:"recent_used"`
}

// ErrorResponse is returned for service-level failures, never for denials.
type ErrorResponse struct {
	Error string `json:"error" cbor:"error"`
	Code  string `json:"code" cbor:"code"`
}

const (
	CodeNoActiveEvent    = "NO_ACTIVE_EVENT"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeUnknownEvent     = "UNKNOWN_EVENT"
	CodeUnknownToken     = "UNKNOWN_TOKEN"
	CodeInternal         = "INTERNAL"
)

// Admission is pushed to live-feed subscribers for every successful redeem.
type Admission struct {
	Event      string    `json:"event"`
	Token      string    `json:"token"`
	Remaining  int       `json:"remaining"`
	AdmittedAt time.Time `json:"admitted_at"`
}
