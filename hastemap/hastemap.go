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

// Package hastemap indexes declared haste module names (@providesModule)
// and package.json names to the file that defines them, per platform.
package hastemap

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Generic and Native are the reserved platform keys: the
// platform-less entry, and the entry for "*.native.ext" files.
const (
	Generic = "generic"
	Native  = "native"
)

// EntryKind distinguishes a haste entry pointing at a Module from one
// pointing at a package.json's directory (a Package).
type EntryKind int

const (
	EntryModule EntryKind = iota
	EntryPackage
)

// Entry is one haste-mapped file.
type Entry struct {
	Kind EntryKind
	Path string
}

// ErrCollision is a fatal error: two distinct files declare the same name at
// the same platform.
type ErrCollision struct {
	Name     string
	Platform string
	PathA    string
	PathB    string
}

func (e *ErrCollision) Error() string {
	return fmt.Sprintf("hastemap: collision for %q at platform %q: %s and %s", e.Name, e.Platform, e.PathA, e.PathB)
}

// HasteMap maps name -> platform -> Entry.
type HasteMap struct {
	mu                   sync.RWMutex
	byName               map[string]map[string]Entry
	byPath               map[string]struct{ name, platform string } // reverse index for change handling
	preferNativePlatform bool
}

// New creates an empty HasteMap.
func New(preferNativePlatform bool) *HasteMap {
	return &HasteMap{
		byName:               make(map[string]map[string]Entry),
		byPath:               make(map[string]struct{ name, platform string }),
		preferNativePlatform: preferNativePlatform,
	}
}

// PlatformForPath derives the platform key for a path: "native" for
// "*.native.ext" files, "generic" for unqualified files, or the explicit
// platform segment for "*.<platform>.ext" files.
func PlatformForPath(path string, platforms []string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	idx := strings.LastIndex(base, ".")
	if idx < 0 {
		return Generic
	}
	tag := base[idx+1:]
	if tag == "native" {
		return Native
	}
	for _, p := range platforms {
		if tag == p {
			return tag
		}
	}
	return Generic
}

// Update inserts or overrides the entry for (name, platform), applying the
// collision rule (_updateHasteMap): a Module overrides an
// existing Package at the same (name, platform); any other combination with
// a different path is a fatal ErrCollision.
func (h *HasteMap) Update(name, platform string, entry Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	platforms, ok := h.byName[name]
	if !ok {
		platforms = make(map[string]Entry)
		h.byName[name] = platforms
	}

	existing, exists := platforms[platform]
	if exists && existing.Path != entry.Path {
		if entry.Kind == EntryModule && existing.Kind == EntryPackage {
			// Module overrides Package: fall through to replace.
		} else {
			return &ErrCollision{Name: name, Platform: platform, PathA: existing.Path, PathB: entry.Path}
		}
	}

	platforms[platform] = entry
	h.byPath[entry.Path] = struct{ name, platform string }{name, platform}
	return nil
}

// GetModule looks up name per the lookup order: exact platform
// match, then "native" if preferNativePlatform, then "generic". Returns the
// zero Entry and false on a complete miss.
func (h *HasteMap) GetModule(name, platform string) (Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	platforms, ok := h.byName[name]
	if !ok {
		return Entry{}, false
	}
	if e, ok := platforms[platform]; ok {
		return e, true
	}
	if h.preferNativePlatform {
		if e, ok := platforms[Native]; ok {
			return e, true
		}
	}
	if e, ok := platforms[Generic]; ok {
		return e, true
	}
	return Entry{}, false
}

// ProcessFileChange implements change handling: remove any
// existing entry pointing at absPath in a single sweep, then, if reindex is
// non-nil, call it and re-Update the entry it returns when it reports ok.
// Whether the file still exists is for reindex to decide; this method does
// not check.
func (h *HasteMap) ProcessFileChange(absPath string, reindex func() (name, platform string, entry Entry, ok bool)) error {
	h.mu.Lock()
	if loc, ok := h.byPath[absPath]; ok {
		delete(h.byName[loc.name], loc.platform)
		if len(h.byName[loc.name]) == 0 {
			delete(h.byName, loc.name)
		}
		delete(h.byPath, absPath)
	}
	h.mu.Unlock()

	if reindex == nil {
		return nil
	}
	name, platform, entry, ok := reindex()
	if !ok {
		return nil
	}
	return h.Update(name, platform, entry)
}

// Remove deletes the entry for (name, platform) if its path equals path,
// used by tests exercising the round-trip invariant.
func (h *HasteMap) Remove(name, platform, path string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	platforms, ok := h.byName[name]
	if !ok {
		return
	}
	if e, ok := platforms[platform]; ok && e.Path == path {
		delete(platforms, platform)
		if len(platforms) == 0 {
			delete(h.byName, name)
		}
		delete(h.byPath, path)
	}
}

// Names returns every declared haste name, for diagnostics (e.g. the haste
// snapshot file).
func (h *HasteMap) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.byName))
	for n := range h.byName {
		names = append(names, n)
	}
	return names
}

// Snapshot returns a flat name -> path map for the entry preferring Generic,
// falling back to any platform entry; used to write the informational haste
// snapshot JSON file.
func (h *HasteMap) Snapshot() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]string, len(h.byName))
	for name, platforms := range h.byName {
		if e, ok := platforms[Generic]; ok {
			out[name] = e.Path
			continue
		}
		for _, e := range platforms {
			out[name] = e.Path
			break
		}
	}
	return out
}
