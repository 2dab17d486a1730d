/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package event

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain/model"
	"github.com/fsnotify/fsnotify"
)

// Watch reloads the registry whenever its file is written or replaced and
// calls onChange with the active event. It blocks until ctx is done.
//
// The directory is watched rather than the file, because Save replaces the
// file through a rename.
func (r *Registry) Watch(ctx context.Context, logger *log.Logger, onChange func(model.Event, bool)) error {
	if logger == nil {
		logger = log.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	target := filepath.Clean(r.path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := r.Reload(); err != nil {
				logger.Printf("failed to reload event registry: %v", err)
				continue
			}
			active, ok := r.Active()
			onChange(active, ok)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Printf("event registry watcher error: %v", err)
		}
	}
}
