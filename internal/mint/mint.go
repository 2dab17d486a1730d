/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package mint

import (
	"strings"

	"github.com/google/uuid"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/util"
)

// TokenLength is the number of hex characters kept from each random UUID.
const TokenLength = 12

// NewToken returns a 12-character upper-case hexadecimal token.
func NewToken() string {
	id := uuid.New()
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:TokenLength])
}

// NewTokens returns n distinct tokens.
func NewTokens(n int) []string {
	seen := util.NewSet[string]()
	tokens := make([]string, 0, n)
	for len(tokens) < n {
		t := NewToken()
		if seen.Has(t) {
			continue
		}
		seen.Add(t)
		tokens = append(tokens, t)
	}
	return tokens
}

// ScanURLs joins each token onto base, the URL a QR code encodes.
func ScanURLs(base string, tokens []string) []string {
	base = strings.TrimRight(base, "/")
	urls := make([]string, len(tokens))
	for i, t := range tokens {
		urls[i] = base + "/" + t
	}
	return urls
}
