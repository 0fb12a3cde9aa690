/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package fastfs

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher wraps an fsnotify.Watcher and feeds real OS change events into a
// Fastfs's ProcessChange, recursively watching every directory under the
// given roots (fsnotify only watches the directories you add, not their
// descendants).
type Watcher struct {
	fsw *fsnotify.Watcher
	ffs *Fastfs

	errors chan error
	done   chan struct{}
}

// NewWatcher creates an fsnotify-backed Watcher over ffs, recursively
// registering every directory found under roots.
func NewWatcher(ffs *Fastfs, roots []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fastfs: creating watcher: %w", err)
	}

	w := &Watcher{
		fsw:    fsw,
		ffs:    ffs,
		errors: make(chan error, 8),
		done:   make(chan struct{}),
	}

	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	return w, nil
}

// addTree registers root and every directory already indexed beneath it.
func (w *Watcher) addTree(root string) error {
	root = filepath.Clean(root)
	if err := w.fsw.Add(root); err != nil {
		// A root that doesn't exist yet is not fatal; ProcessChange(Add, ...)
		// for a file created later still resolves against rootFor.
		return nil
	}

	w.ffs.mu.RLock()
	var dirs []string
	for p, n := range w.ffs.byPath {
		if rel, err := filepath.Rel(root, p); n.isDir && err == nil && filepath.IsLocal(rel) {
			dirs = append(dirs, p)
		}
	}
	w.ffs.mu.RUnlock()

	for _, d := range dirs {
		if d == root {
			continue
		}
		_ = w.fsw.Add(d)
	}
	return nil
}

// Errors returns the channel on which watch-loop errors are reported.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Run processes fsnotify events until Close is called, translating them
// into Fastfs.ProcessChange calls. Intended to run in its own goroutine.
func (w *Watcher) Run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	switch {
	case event.Op&fsnotify.Create != 0:
		// A newly created directory must itself be watched so its future
		// children are seen.
		if info, err := w.ffs.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.fsw.Add(event.Name)
		}
		w.ffs.ProcessChange(Add, event.Name)
	case event.Op&fsnotify.Write != 0:
		w.ffs.ProcessChange(Change, event.Name)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.ffs.ProcessChange(Delete, event.Name)
	}
}

// Close stops the watch loop and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
