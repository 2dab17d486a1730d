/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package ledger

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain/model"
)

func TestLedger_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan_log_backup.csv")
	l, err := Open(path)
	require.NoError(t, err)

	at := time.Date(2025, 6, 1, 18, 2, 11, 0, time.UTC)
	require.NoError(t, l.Append(model.ScanRecord{Timestamp: at, TokenID: "A1B2C3D4E5F6", Outcome: model.OutcomeAdmitted}))
	require.NoError(t, l.Append(model.ScanRecord{Timestamp: at.Add(time.Second), TokenID: "A1B2C3D4E5F6", Outcome: model.OutcomeAlreadyAdmitted}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "time,token,status\n2025-06-01T18:02:11Z,A1B2C3D4E5F6,ADMITTED\n2025-06-01T18:02:12Z,A1B2C3D4E5F6,ALREADY_ADMITTED\n", string(raw))

	records, err := l.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.OutcomeAlreadyAdmitted, records[1].Outcome)
	assert.True(t, records[0].Timestamp.Equal(at))
}

func TestLedger_ReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(model.ScanRecord{Timestamp: time.Now(), TokenID: "T1", Outcome: model.OutcomeInvalidToken}))

	l2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l2.Append(model.ScanRecord{Timestamp: time.Now(), TokenID: "T2", Outcome: model.OutcomeAuthorityUnreachable}))

	records, err := l2.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "T1", records[0].TokenID)
	assert.Equal(t, "T2", records[1].TokenID)
}

func TestLedger_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(model.ScanRecord{Timestamp: time.Now(), TokenID: "T1", Outcome: model.OutcomeAdmitted}))

	require.NoError(t, l.Clear())
	records, err := l.Records()
	require.NoError(t, err)
	assert.Empty(t, records)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "time,token,status\n", string(raw))
}

func TestLedger_ConcurrentAppends(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "ledger.csv"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Append(model.ScanRecord{Timestamp: time.Now(), TokenID: "X", Outcome: model.OutcomeAlreadyAdmitted}))
		}()
	}
	wg.Wait()

	records, err := l.Records()
	require.NoError(t, err)
	assert.Len(t, records, 20)
}

func TestOpen_MissingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope", "ledger.csv"))
	require.Error(t, err)
}
