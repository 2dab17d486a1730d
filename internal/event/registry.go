/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package event keeps the registry of events and the active selection.
//
// The registry is a YAML file:
//
//	active: gala
//	events:
//	  gala:
//	    store: gala.db
//	    tokens: gala_invites.csv
//
// Relative paths resolve against the directory of the registry file.
package event

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain/model"
	"gopkg.in/yaml.v3"
)

var ErrEventExists = errors.New("event already exists")

type registryFile struct {
	Active string                 `yaml:"active"`
	Events map[string]model.Event `yaml:"events"`
}

// Registry is the in-memory view of the registry file. It implements
// service.EventSource.
type Registry struct {
	path string

	mu     sync.RWMutex
	active string
	events map[string]model.Event
}

// Load reads the registry at path. A missing file yields an empty registry.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path, events: map[string]model.Event{}}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) Path() string {
	return r.path
}

// Reload re-reads the registry file, replacing the in-memory state.
func (r *Registry) Reload() error {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		r.mu.Lock()
		r.active = ""
		r.events = map[string]model.Event{}
		r.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read registry: %w", err)
	}

	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse registry %s: %w", r.path, err)
	}
	if f.Events == nil {
		f.Events = map[string]model.Event{}
	}

	r.mu.Lock()
	r.active = f.Active
	r.events = f.Events
	r.mu.Unlock()
	return nil
}

// Save writes the registry back to its file through a temporary file and a rename.
func (r *Registry) Save() error {
	r.mu.RLock()
	f := registryFile{Active: r.active, Events: make(map[string]model.Event, len(r.events))}
	for name, ev := range r.events {
		f.Events[name] = ev
	}
	r.mu.RUnlock()

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}

// Create registers a new event. Empty Store and Tokens get the
// conventional "<name>.db" and "<name>_invites.csv".
func (r *Registry) Create(name string, ev model.Event) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("event name must not be empty")
	}
	if ev.Store == "" {
		ev.Store = name + ".db"
	}
	if ev.Tokens == "" {
		ev.Tokens = name + "_invites.csv"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[name]; ok {
		return fmt.Errorf("%w: %s", ErrEventExists, name)
	}
	r.events[name] = ev
	return nil
}

// SetActive selects the event served by the authority.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[name]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownEvent, name)
	}
	r.active = name
	return nil
}

// Active returns the active event with its paths resolved.
func (r *Registry) Active() (model.Event, bool) {
	r.mu.RLock()
	name := r.active
	r.mu.RUnlock()
	if name == "" {
		return model.Event{}, false
	}
	return r.Lookup(name)
}

// Lookup returns the named event with its paths resolved.
func (r *Registry) Lookup(name string) (model.Event, bool) {
	r.mu.RLock()
	ev, ok := r.events[name]
	r.mu.RUnlock()
	if !ok {
		return model.Event{}, false
	}
	ev.Name = name
	if ev.Store == "" {
		ev.Store = name + ".db"
	}
	if ev.Tokens == "" {
		ev.Tokens = name + "_invites.csv"
	}
	ev.Store = r.resolve(ev.Store)
	ev.Tokens = r.resolve(ev.Tokens)
	return ev, true
}

// Names lists the registered events in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.events))
	for name := range r.events {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) resolve(p string) string {
	if strings.Contains(p, "://") || p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(r.path), p)
}
