/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package ledger keeps the scanning station's append-only CSV record of scan
// outcomes:
//
//	time,token,status
//	2025-06-01T18:02:11+09:00,A1B2C3D4E5F6,ADMITTED
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain/model"
)

var header = []string{"time", "token", "status"}

// Ledger appends ScanRecords to a CSV file. Each Append opens, writes and
// closes the file so a crash loses at most the record in flight.
type Ledger struct {
	path string
	mu   sync.Mutex
}

func Open(path string) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path must not be empty")
	}
	l := &Ledger{path: path}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureHeader(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Path() string {
	return l.path
}

func (l *Ledger) ensureHeader() error {
	info, err := os.Stat(l.path)
	if err == nil && info.Size() > 0 {
		return nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat ledger: %w", err)
	}
	return l.writeFile(os.O_CREATE|os.O_WRONLY|os.O_TRUNC, header)
}

func (l *Ledger) writeFile(flag int, rows ...[]string) error {
	f, err := os.OpenFile(l.path, flag, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	return f.Close()
}

// Append records one scan outcome.
func (l *Ledger) Append(rec model.ScanRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureHeader(); err != nil {
		return err
	}
	row := []string{rec.Timestamp.Format(time.RFC3339), rec.TokenID, string(rec.Outcome)}
	return l.writeFile(os.O_APPEND|os.O_CREATE|os.O_WRONLY, row)
}

// Clear truncates the ledger back to its header row.
func (l *Ledger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeFile(os.O_CREATE|os.O_WRONLY|os.O_TRUNC, header)
}

// Records reads the ledger back in append order. Rows that do not parse are
// skipped.
func (l *Ledger) Records() ([]model.ScanRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var records []model.ScanRecord
	for first := true; ; first = false {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return records, fmt.Errorf("read ledger: %w", err)
		}
		if first && len(row) > 0 && row[0] == header[0] {
			continue
		}
		if len(row) < 3 {
			continue
		}
		ts, err := time.Parse(time.RFC3339, row[0])
		if err != nil {
			continue
		}
		records = append(records, model.ScanRecord{Timestamp: ts, TokenID: row[1], Outcome: model.Outcome(row[2])})
	}
	return records, nil
}
