/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import "time"

// Token represents a single-use admission token of one event.
type Token struct {
	ID     string     `json:"token" cbor:"token"`
	Used   bool       `json:"used" cbor:"used"`
	UsedAt *time.Time `json:"used_at,omitempty" cbor:"used_at,omitempty"`
}

// RedeemStatus is the business outcome of a redemption attempt.
type RedeemStatus int

const (
	RedeemInvalid RedeemStatus = iota
	RedeemAdmitted
	RedeemAlreadyUsed
)

func (s RedeemStatus) String() string {
	switch s {
	case RedeemAdmitted:
		return "ADMITTED"
	case RedeemAlreadyUsed:
		return "ALREADY_USED"
	case RedeemInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// RedeemResult carries the outcome of TokenStore.Redeem.
// Remaining is only meaningful when Status is RedeemAdmitted.
type RedeemResult struct {
	Status    RedeemStatus
	Remaining int
}

// Counts is a point-in-time aggregate over the token set.
type Counts struct {
	Total     int `json:"total" cbor:"total"`
	Used      int `json:"used" cbor:"used"`
	Remaining int `json:"remaining" cbor:"remaining"`
}
