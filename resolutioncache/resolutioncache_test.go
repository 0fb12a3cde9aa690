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

package resolutioncache_test

import (
	"testing"
	"time"

	"mappa.dev/depgraph/assetmap"
	"mappa.dev/depgraph/fastfs"
	"mappa.dev/depgraph/hastemap"
	"mappa.dev/depgraph/internal/mapfs"
	"mappa.dev/depgraph/module"
	"mappa.dev/depgraph/resolutioncache"
	"mappa.dev/depgraph/resolver"
)

func passthroughTransform(m *module.Module, source []byte, opts module.TransformOptions) (module.TransformResult, error) {
	return module.TransformResult{Code: string(source)}, nil
}

func setup(t *testing.T, files map[string]string) (*mapfs.MapFileSystem, *fastfs.Fastfs, *module.Cache, *resolutioncache.ResolutionCache) {
	t.Helper()
	mfs := mapfs.New()
	for path, content := range files {
		mfs.AddFile(path, content, 0644)
	}
	ffs, err := fastfs.New(mfs, fastfs.Options{Roots: []string{"/r"}})
	if err != nil {
		t.Fatalf("fastfs.New failed: %v", err)
	}
	modules := module.NewCache(ffs, passthroughTransform, requireExtractor)
	assets := assetmap.New(ffs, []string{"png"})
	haste := hastemap.New(false)
	res := resolver.New(ffs, assets, haste, modules, resolver.Options{
		Platform:    "ios",
		ProjectExts: []string{"js"},
	})
	cache := resolutioncache.New(res)
	return mfs, ffs, modules, cache
}

func requireExtractor(code []byte) ([]string, error) {
	var specs []string
	src := string(code)
	for {
		i := indexOf(src, "require(\"")
		j := indexOf(src, "require('")
		var start int
		var quote byte
		if i < 0 && j < 0 {
			break
		}
		if j < 0 || (i >= 0 && i < j) {
			start = i + len("require(\"")
			quote = '"'
		} else {
			start = j + len("require('")
			quote = '\''
		}
		end := indexOfByte(src[start:], quote)
		if end < 0 {
			break
		}
		specs = append(specs, src[start:start+end])
		src = src[start+end:]
	}
	return specs, nil
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func indexOfByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for resolution barrier")
	}
}

// S1 — basic resolve records a forward edge and its inverse depender edge.
func TestReloadRequiresRecordsDependerEdge(t *testing.T) {
	_, _, modules, cache := setup(t, map[string]string{
		"/r/a.js": `require("./b")`,
		"/r/b.js": ``,
	})

	a := modules.GetModule("/r/a.js")
	aRes := cache.Pin(a)

	barrier := aRes.ReloadRequires(module.TransformOptions{}, true, false, nil, nil)
	<-barrier

	b := modules.GetModule("/r/b.js")
	dependers := cache.Dependers(b)
	if len(dependers) != 1 || dependers[0] != a {
		t.Errorf("got dependers %v, want [a.js]", dependers)
	}
	resolved := aRes.Resolved()
	if resolved["./b"] != b {
		t.Errorf("got %v, want b.js resolved for ./b", resolved["./b"])
	}
}

// S6 — incremental invalidation: removing a dependency surfaces onError,
// and re-adding it restores the edge on the next AllResolved flush.
func TestAllResolvedSurfacesDeletedDependencyThenRestores(t *testing.T) {
	mfs, ffs, modules, cache := setup(t, map[string]string{
		"/r/a.js": `require("./b")`,
		"/r/b.js": ``,
	})

	a := modules.GetModule("/r/a.js")
	aRes := cache.Pin(a)
	<-aRes.ReloadRequires(module.TransformOptions{}, true, false, nil, nil)

	mfs.Remove("/r/b.js")
	ffs.ProcessChange(fastfs.Delete, "/r/b.js")
	modules.Invalidate("/r/b.js", true)
	mfs.WriteFile("/r/a.js", []byte(`require("./b")`), 0644)
	ffs.ProcessChange(fastfs.Change, "/r/a.js")
	modules.Invalidate("/r/a.js", false)
	aRes.MarkDirty()

	var gotErr bool
	onError := func(from *module.Module, specifier string, err error) { gotErr = true }
	waitFor(t, cache.AllResolved(module.TransformOptions{}, onError, nil))
	if !gotErr {
		t.Error("expected onError to fire for the now-missing ./b dependency")
	}

	mfs.AddFile("/r/b.js", "", 0644)
	ffs.ProcessChange(fastfs.Add, "/r/b.js")
	aRes.MarkDirty()
	waitFor(t, cache.AllResolved(module.TransformOptions{}, nil, nil))

	b := modules.GetModule("/r/b.js")
	resolved := aRes.Resolved()
	if resolved["./b"] != b {
		t.Errorf("expected ./b to resolve again to b.js after restoring the file")
	}
}

// S7 — a require cycle must not recurse infinitely and must still fulfill
// AllResolved.
func TestCyclicGraphResolvesWithoutInfiniteRecursion(t *testing.T) {
	_, _, modules, cache := setup(t, map[string]string{
		"/r/a.js": `require("./b")`,
		"/r/b.js": `require("./a")`,
	})

	a := modules.GetModule("/r/a.js")
	aRes := cache.Pin(a)

	done := make(chan struct{})
	go func() {
		<-aRes.ReloadRequires(module.TransformOptions{}, true, false, nil, nil)
		close(done)
	}()
	waitFor(t, done)

	b := modules.GetModule("/r/b.js")
	bRes := cache.GetResolution(b)
	if bRes.Resolved()["./a"] != a {
		t.Error("expected b.js's resolution to record ./a -> a.js")
	}
}

// At-most-one-in-flight-reload: a second ReloadRequires call issued while
// the first is still running returns the same barrier channel.
func TestReloadRequiresAtMostOneInFlight(t *testing.T) {
	_, _, modules, cache := setup(t, map[string]string{
		"/r/a.js": `require("./b")`,
		"/r/b.js": ``,
	})

	a := modules.GetModule("/r/a.js")
	aRes := cache.Pin(a)

	first := aRes.ReloadRequires(module.TransformOptions{}, true, false, nil, nil)
	second := aRes.ReloadRequires(module.TransformOptions{}, true, false, nil, nil)
	if first != second {
		t.Error("expected concurrent ReloadRequires calls to share one barrier channel")
	}
	<-first
}
