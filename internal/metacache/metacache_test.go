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

package metacache_test

import (
	"testing"
	"time"

	"mappa.dev/depgraph/internal/mapfs"
	"mappa.dev/depgraph/internal/metacache"
)

func TestPutThenGetRoundTrips(t *testing.T) {
	mfs := mapfs.New()
	c := metacache.New(mfs, "/cache")
	mt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c.Put("/r/a.js", "code", "hash1", "transformed-code", mt)

	got, ok := c.Get("/r/a.js", "code", "hash1", mt)
	if !ok {
		t.Fatal("expected cache hit from in-memory index before flush")
	}
	if got != "transformed-code" {
		t.Errorf("got %q, want transformed-code", got)
	}
}

func TestGetRejectsStaleModTime(t *testing.T) {
	mfs := mapfs.New()
	c := metacache.New(mfs, "/cache")
	mt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c.Put("/r/a.js", "code", "hash1", "transformed-code", mt)

	newer := mt.Add(time.Hour)
	if _, ok := c.Get("/r/a.js", "code", "hash1", newer); ok {
		t.Error("expected cache miss when file's modTime advanced")
	}
}

func TestDistinctOptsHashesAreIndependentEntries(t *testing.T) {
	mfs := mapfs.New()
	c := metacache.New(mfs, "/cache")
	mt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c.Put("/r/a.js", "code", "hash1", "dev-build", mt)
	c.Put("/r/a.js", "code", "hash2", "prod-build", mt)

	v1, ok1 := c.Get("/r/a.js", "code", "hash1", mt)
	v2, ok2 := c.Get("/r/a.js", "code", "hash2", mt)
	if !ok1 || v1 != "dev-build" {
		t.Errorf("hash1: got (%q, %v), want (dev-build, true)", v1, ok1)
	}
	if !ok2 || v2 != "prod-build" {
		t.Errorf("hash2: got (%q, %v), want (prod-build, true)", v2, ok2)
	}
}

func TestFlushPersistsToDiskForNextCache(t *testing.T) {
	mfs := mapfs.New()
	mt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c1 := metacache.New(mfs, "/cache")
	c1.Put("/r/a.js", "docblockID", "hash1", "EntryHaste", mt)
	c1.Flush()

	c2 := metacache.New(mfs, "/cache")
	got, ok := c2.Get("/r/a.js", "docblockID", "hash1", mt)
	if !ok {
		t.Fatal("expected a fresh Cache to load the flushed entry from disk")
	}
	if got != "EntryHaste" {
		t.Errorf("got %q, want EntryHaste", got)
	}
}

func TestGetMissingEntryReportsNotOK(t *testing.T) {
	mfs := mapfs.New()
	c := metacache.New(mfs, "/cache")

	if _, ok := c.Get("/r/missing.js", "code", "hash1", time.Now()); ok {
		t.Error("expected cache miss for an entry never put")
	}
}
