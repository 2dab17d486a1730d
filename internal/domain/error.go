/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package domain

import "errors"

var (
	ErrInvalidToken         = errors.New("invalid token")
	ErrNoActiveEvent        = errors.New("no active event selected")
	ErrUnknownEvent         = errors.New("unknown event")
	ErrStoreUnavailable     = errors.New("token store unavailable")
	ErrAuthorityUnreachable = errors.New("admission authority unreachable")
)
