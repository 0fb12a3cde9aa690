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

package module_test

import (
	"testing"

	"mappa.dev/depgraph/fastfs"
	"mappa.dev/depgraph/internal/mapfs"
	"mappa.dev/depgraph/module"
)

func newTestCache(t *testing.T) (*mapfs.MapFileSystem, *fastfs.Fastfs, *module.Cache) {
	t.Helper()
	mfs := mapfs.New()
	mfs.AddFile("/r/a.js", "require('./b');", 0644)
	mfs.AddFile("/r/b.js", "", 0644)
	mfs.AddFile("/r/PKG/package.json", `{"name":"pkg"}`, 0644)

	ffs, err := fastfs.New(mfs, fastfs.Options{Roots: []string{"/r"}})
	if err != nil {
		t.Fatalf("fastfs.New failed: %v", err)
	}
	cache := module.NewCache(ffs, passthroughTransform, requireExtractor)
	return mfs, ffs, cache
}

func TestGetModulePreservesIdentity(t *testing.T) {
	_, _, cache := newTestCache(t)

	a1 := cache.GetModule("/r/a.js")
	a2 := cache.GetModule("/r/a.js")
	if a1 != a2 {
		t.Error("expected GetModule to return the same instance for the same path")
	}
}

func TestGetAssetModuleAndNullModuleAreDistinctRegistries(t *testing.T) {
	_, _, cache := newTestCache(t)

	asset := cache.GetAssetModule("/r/logo.png")
	if asset.Kind() != module.Asset {
		t.Errorf("got kind %v, want Asset", asset.Kind())
	}

	null := cache.GetNullModule("disabled/thing")
	if null.Kind() != module.Null {
		t.Errorf("got kind %v, want Null", null.Kind())
	}
	if null.Path() != "disabled/thing" {
		t.Errorf("got path %q, want original specifier", null.Path())
	}
}

func TestGetPackageCaches(t *testing.T) {
	_, _, cache := newTestCache(t)

	p1, err := cache.GetPackage("/r/PKG/package.json")
	if err != nil {
		t.Fatalf("GetPackage failed: %v", err)
	}
	p2, err := cache.GetPackage("/r/PKG/package.json")
	if err != nil {
		t.Fatalf("GetPackage failed: %v", err)
	}
	if p1 != p2 {
		t.Error("expected GetPackage to return the same instance on a cache hit")
	}
	if p1.Name != "pkg" {
		t.Errorf("got name %q", p1.Name)
	}
}

func TestGetPackageForModuleNilWithoutAncestorPackage(t *testing.T) {
	_, _, cache := newTestCache(t)
	m := cache.GetModule("/r/a.js")

	// No package.json among a.js's ancestors (only /r/PKG/package.json, a
	// sibling directory), so no owning package is found.
	pkg, err := cache.GetPackageForModule(m)
	if err != nil {
		t.Fatalf("GetPackageForModule failed: %v", err)
	}
	if pkg != nil {
		t.Errorf("got %+v, want nil (no ancestor package.json)", pkg)
	}
}

func TestHasConflictDetectsCaseInsensitiveCollision(t *testing.T) {
	_, _, cache := newTestCache(t)

	cache.GetModule("/r/Foo.js")
	if cache.HasConflict("/r/Foo.js") {
		t.Fatal("a single registration should not be a conflict")
	}

	cache.GetModule("/r/foo.js")
	if !cache.HasConflict("/r/foo.js") || !cache.HasConflict("/r/Foo.js") {
		t.Error("expected a case-insensitive collision between /r/Foo.js and /r/foo.js")
	}
}

func TestInvalidateOnDeleteEvictsModule(t *testing.T) {
	_, _, cache := newTestCache(t)

	m1 := cache.GetModule("/r/a.js")
	cache.Invalidate("/r/a.js", true)
	m2 := cache.GetModule("/r/a.js")

	if m1 == m2 {
		t.Error("expected a fresh Module instance after a delete invalidation")
	}
}

func TestInvalidateOnChangeDropsTransformCacheOnly(t *testing.T) {
	mfs, ffs, cache := newTestCache(t)
	m1 := cache.GetModule("/r/a.js")

	if _, err := m1.ReadDependencies(module.TransformOptions{}); err != nil {
		t.Fatalf("ReadDependencies failed: %v", err)
	}

	mfs.WriteFile("/r/a.js", []byte("require('./changed');"), 0644)
	ffs.ProcessChange(fastfs.Change, "/r/a.js")
	cache.Invalidate("/r/a.js", false)

	m2 := cache.GetModule("/r/a.js")
	if m1 != m2 {
		t.Error("expected the same Module instance across a content change")
	}

	deps, err := m2.ReadDependencies(module.TransformOptions{})
	if err != nil {
		t.Fatalf("ReadDependencies failed: %v", err)
	}
	if len(deps) != 1 || deps[0] != "./changed" {
		t.Errorf("got %v, want [./changed] after invalidation", deps)
	}
}
