/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import "time"

type Outcome string

const (
	OutcomeAdmitted             Outcome = "ADMITTED"
	OutcomeAlreadyAdmitted      Outcome = "ALREADY_ADMITTED"
	OutcomeInvalidToken         Outcome = "INVALID_TOKEN"
	OutcomeAuthorityUnreachable Outcome = "AUTHORITY_UNREACHABLE"
)

// Banner returns the operator-facing status line for the outcome.
func (o Outcome) Banner() string {
	switch o {
	case OutcomeAdmitted:
		return "ENTRY ALLOWED"
	case OutcomeAlreadyAdmitted:
		return "ALREADY ENTERED"
	case OutcomeInvalidToken:
		return "INVALID TOKEN"
	default:
		return "SERVER ERROR"
	}
}

// ScanRecord is an immutable activity ledger entry.
type ScanRecord struct {
	Timestamp time.Time
	TokenID   string
	Outcome   Outcome
}
