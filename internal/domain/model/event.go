/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

// Event is one entry of the event registry. Store is the handle passed to
// the storage opener: a SQLite file path or a postgres:// URL.
type Event struct {
	Name   string `yaml:"-"`
	Store  string `yaml:"store"`
	Tokens string `yaml:"tokens"`
}
