/*
 * vrift: virtual filesystem acceleration layer
 * Copyright © 2026 Mario Finelli
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package watch recursively tracks filesystem changes under a project
// root, debouncing bursts of events into a single coalesced Event per
// path so the daemon doesn't re-ingest on every individual write(2).
package watch

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Kind classifies a coalesced filesystem change.
type Kind int

const (
	Created Kind = iota
	Modified
	Deleted
	Renamed
)

// Event is one debounced, ignore-filtered filesystem change.
type Event struct {
	Kind Kind
	Path string
}

const defaultDebounce = 100 * time.Millisecond

// Watcher wraps an *fsnotify.Watcher, adding every directory under root
// recursively (fsnotify itself only watches one level) and emitting
// debounced Events on Events().
type Watcher struct {
	root     string
	ignore   []string
	debounce time.Duration

	fsw    *fsnotify.Watcher
	events chan Event

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]Kind

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a Watcher over root. Events does not start flowing until
// Run is called.
func New(root string, ignore []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		ignore:   ignore,
		debounce: defaultDebounce,
		fsw:      fsw,
		events:   make(chan Event, 256),
		timers:   make(map[string]*time.Timer),
		pending:  make(map[string]Kind),
		done:     make(chan struct{}),
	}

	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}

	return w, nil
}

// Events returns the channel of debounced, ignore-filtered changes.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Close stops the watcher and releases the underlying inotify/kqueue
// handle.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			return nil
		}
		if w.isIgnored(p) {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

func (w *Watcher) isIgnored(p string) bool {
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".vrift" || strings.HasPrefix(rel, ".vrift/") {
		return true
	}
	for _, pat := range w.ignore {
		if ok, _ := path.Match(pat, rel); ok {
			return true
		}
	}
	return false
}

// Run reads raw fsnotify events until ctx-equivalent Close is called,
// filtering ignored paths before anything reaches the debounce map and
// re-walking newly created directories so they're watched too.
func (w *Watcher) Run() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleRaw(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logrus.WithError(err).Warn("watch: fsnotify error")
		}
	}
}

func (w *Watcher) handleRaw(ev fsnotify.Event) {
	if w.isIgnored(ev.Name) {
		return
	}

	if _, err := os.Stat(ev.Name); err != nil {
		if os.IsNotExist(err) {
			// The path is already gone (removed, renamed away, or created
			// and deleted in a race); report it as Deleted rather than
			// letting the watch loop die.
			w.schedule(ev.Name, Deleted)
			return
		}
		logrus.WithError(err).WithField("path", ev.Name).Warn("watch: stat after event failed")
	}

	switch {
	case ev.Op&fsnotify.Create == fsnotify.Create:
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				logrus.WithError(err).WithField("path", ev.Name).Warn("watch: add new directory failed")
			}
		}
		w.schedule(ev.Name, Created)
	case ev.Op&fsnotify.Write == fsnotify.Write:
		w.schedule(ev.Name, Modified)
	case ev.Op&fsnotify.Remove == fsnotify.Remove:
		w.schedule(ev.Name, Deleted)
	case ev.Op&fsnotify.Rename == fsnotify.Rename:
		w.schedule(ev.Name, Renamed)
	}
}

// schedule coalesces repeated events on the same path into one Event,
// firing after the debounce window elapses with no further events.
func (w *Watcher) schedule(name string, kind Kind) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// A Renamed immediately followed (within the window) by a Created on
	// the same path collapses to a single Renamed; anything else keeps
	// the latest kind seen.
	if prev, ok := w.pending[name]; ok && prev == Renamed && kind == Created {
		kind = Renamed
	}
	w.pending[name] = kind

	if t, ok := w.timers[name]; ok {
		t.Stop()
	}
	w.timers[name] = time.AfterFunc(w.debounce, func() {
		w.flush(name)
	})
}

func (w *Watcher) flush(name string) {
	w.mu.Lock()
	kind, ok := w.pending[name]
	delete(w.pending, name)
	delete(w.timers, name)
	w.mu.Unlock()

	if !ok {
		return
	}

	select {
	case w.events <- Event{Kind: kind, Path: name}:
	case <-w.done:
	}
}
