/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := NewSet("A", "B", "A")
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has("A"))
	assert.False(t, s.Has("C"))

	s.Add("C")
	s.Delete("A")
	assert.False(t, s.Has("A"))
	assert.True(t, s.Has("C"))

	s.Clear()
	assert.Equal(t, 0, s.Len())
	s.Add("D")
	assert.True(t, s.Has("D"))
}
