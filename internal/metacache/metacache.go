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

// Package metacache implements an on-disk transform/docblock metadata
// cache: entries are keyed by (absolute path, field name, stable hash of
// transformOptions), validated on load against the file's modified-time,
// and written to disk debounced by 2 seconds.
package metacache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"sync"
	"time"

	depfs "mappa.dev/depgraph/fs"
)

// writeDelay is the debounce window: a burst of Put calls for
// the same entry triggers one disk write, 2 seconds after the last one.
const writeDelay = 2 * time.Second

// Entry is a single cached field value for one (path, field, optsHash) key.
type Entry struct {
	Path    string    `json:"path"`
	Field   string    `json:"field"`
	Value   string    `json:"value"`
	ModTime time.Time `json:"modTime"`
}

// Cache is a debounced, mtime-validated, on-disk key/value store for
// transform and docblock extraction results. The in-memory index mirrors
// what has been written (or is pending write) to dir; once an entry has
// been loaded or put this run, Get answers from memory and touches disk
// only to remove the file of an entry it finds stale.
type Cache struct {
	fsys depfs.FileSystem
	dir  string

	mu      sync.Mutex
	entries map[string]*Entry
	timers  map[string]*time.Timer
}

// New returns a Cache that persists entries under dir on fsys.
func New(fsys depfs.FileSystem, dir string) *Cache {
	return &Cache{
		fsys:    fsys,
		dir:     dir,
		entries: make(map[string]*Entry),
		timers:  make(map[string]*time.Timer),
	}
}

func key(path, field, optsHash string) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(field))
	h.Write([]byte{0})
	h.Write([]byte(optsHash))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) filename(k string) string {
	return filepath.Join(c.dir, k+".json")
}

// Get returns the cached value for (path, field, optsHash), validated
// against the file's current modified-time. A stale or absent entry
// reports ok == false. currentModTime is obtained by the caller (usually
// via the same Fastfs stat it already performed for the read).
func (c *Cache) Get(path, field, optsHash string, currentModTime time.Time) (value string, ok bool) {
	k := key(path, field, optsHash)

	c.mu.Lock()
	e, loaded := c.entries[k]
	c.mu.Unlock()

	if !loaded {
		e, loaded = c.load(k)
		if !loaded {
			return "", false
		}
		c.mu.Lock()
		c.entries[k] = e
		c.mu.Unlock()
	}

	if !e.ModTime.Equal(currentModTime) {
		c.mu.Lock()
		delete(c.entries, k)
		c.mu.Unlock()
		_ = c.fsys.Remove(c.filename(k))
		return "", false
	}
	return e.Value, true
}

func (c *Cache) load(k string) (*Entry, bool) {
	data, err := c.fsys.ReadFile(c.filename(k))
	if err != nil {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false
	}
	return &e, true
}

// Put records value for (path, field, optsHash) and schedules a debounced
// write to disk. Repeated Puts for the same key within writeDelay collapse
// into a single write of the last value.
func (c *Cache) Put(path, field, optsHash, value string, modTime time.Time) {
	k := key(path, field, optsHash)
	e := &Entry{Path: path, Field: field, Value: value, ModTime: modTime}

	c.mu.Lock()
	c.entries[k] = e
	if t, ok := c.timers[k]; ok {
		t.Stop()
	}
	c.timers[k] = time.AfterFunc(writeDelay, func() { c.flush(k) })
	c.mu.Unlock()
}

func (c *Cache) flush(k string) {
	c.mu.Lock()
	e, ok := c.entries[k]
	delete(c.timers, k)
	c.mu.Unlock()
	if !ok {
		return
	}

	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.fsys.MkdirAll(c.dir, 0o755); err != nil {
		return
	}
	_ = c.fsys.WriteFile(c.filename(k), data, 0o644)
}

// Flush forces every pending debounced write to happen immediately, for
// callers that need entries durable before exiting (e.g. a one-shot CLI
// command that doesn't live long enough for the 2s debounce to fire).
func (c *Cache) Flush() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.timers))
	for k, t := range c.timers {
		t.Stop()
		keys = append(keys, k)
	}
	c.mu.Unlock()

	for _, k := range keys {
		c.flush(k)
	}
}
