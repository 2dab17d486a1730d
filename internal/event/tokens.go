/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package event

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

const tokensHeader = "token"

// LoadTokens reads the token CSV of an event: a "token" header row followed
// by one token per row in the first column. A missing file means no tokens.
func LoadTokens(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open tokens: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var tokens []string
	first := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tokens %s: %w", path, err)
		}
		if len(row) == 0 {
			continue
		}
		token := strings.TrimSpace(row[0])
		if first {
			first = false
			if strings.EqualFold(token, tokensHeader) {
				continue
			}
		}
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

// WriteTokens writes tokens in the format LoadTokens reads.
func WriteTokens(path string, tokens []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create tokens: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{tokensHeader}); err != nil {
		f.Close()
		return fmt.Errorf("write tokens: %w", err)
	}
	for _, t := range tokens {
		if err := w.Write([]string{t}); err != nil {
			f.Close()
			return fmt.Errorf("write tokens: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush tokens: %w", err)
	}
	return f.Close()
}
