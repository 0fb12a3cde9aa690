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

package resolver_test

import (
	"encoding/json"
	"testing"

	"mappa.dev/depgraph/assetmap"
	"mappa.dev/depgraph/fastfs"
	"mappa.dev/depgraph/hastemap"
	"mappa.dev/depgraph/internal/mapfs"
	"mappa.dev/depgraph/module"
	"mappa.dev/depgraph/resolver"
	"mappa.dev/depgraph/testutil"
)

func noopTransform(m *module.Module, source []byte, opts module.TransformOptions) (module.TransformResult, error) {
	return module.TransformResult{Code: string(source)}, nil
}

func noopExtract([]byte) ([]string, error) { return nil, nil }

func setup(t *testing.T, files map[string]string, opts resolver.Options) (*fastfs.Fastfs, *module.Cache, *resolver.Resolver) {
	t.Helper()
	mfs := mapfs.New()
	for path, content := range files {
		mfs.AddFile(path, content, 0644)
	}
	ffs, err := fastfs.New(mfs, fastfs.Options{Roots: []string{"/r"}})
	if err != nil {
		t.Fatalf("fastfs.New failed: %v", err)
	}
	assets := assetmap.New(ffs, []string{"png"})
	haste := hastemap.New(false)
	modules := module.NewCache(ffs, noopTransform, noopExtract)
	if opts.ProjectExts == nil {
		opts.ProjectExts = []string{"js"}
	}
	r := resolver.New(ffs, assets, haste, modules, opts)
	return ffs, modules, r
}

// S1 — relative import, extension fallback.
func TestResolveRelativeExtensionFallback(t *testing.T) {
	_, modules, r := setup(t, map[string]string{
		"/r/a.js": `require("./b")`,
		"/r/b.js": ``,
	}, resolver.Options{Platform: "ios"})

	from := modules.GetModule("/r/a.js")
	m, err := r.Resolve(from, "./b")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if m.Path() != "/r/b.js" {
		t.Errorf("got %q, want /r/b.js", m.Path())
	}
}

// S2 — platform override.
func TestResolvePlatformOverride(t *testing.T) {
	_, modules, riOS := setup(t, map[string]string{
		"/r/a.js":     `require("./b")`,
		"/r/b.js":     ``,
		"/r/b.ios.js": ``,
	}, resolver.Options{Platform: "ios"})

	from := modules.GetModule("/r/a.js")
	m, err := riOS.Resolve(from, "./b")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if m.Path() != "/r/b.ios.js" {
		t.Errorf("got %q, want /r/b.ios.js", m.Path())
	}

	_, modules2, rAndroid := setup(t, map[string]string{
		"/r/a.js":     `require("./b")`,
		"/r/b.js":     ``,
		"/r/b.ios.js": ``,
	}, resolver.Options{Platform: "android"})
	from2 := modules2.GetModule("/r/a.js")
	m2, err := rAndroid.Resolve(from2, "./b")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if m2.Path() != "/r/b.js" {
		t.Errorf("got %q, want /r/b.js", m2.Path())
	}
}

// S4 — package-level browser/react-native redirect.
func TestResolvePackageRedirect(t *testing.T) {
	_, modules, r := setup(t, map[string]string{
		"/r/x.js":             `require("pkg/a")`,
		"/r/pkg/package.json": `{"name":"pkg","react-native":{"./a.js":"./b.js"}}`,
		"/r/pkg/a.js":         ``,
		"/r/pkg/b.js":         ``,
	}, resolver.Options{Platform: "ios"})

	from := modules.GetModule("/r/x.js")
	m, err := r.Resolve(from, "pkg/a")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if m.Path() != "/r/pkg/b.js" {
		t.Errorf("got %q, want /r/pkg/b.js", m.Path())
	}
}

// S5 — disabled module via a `false` redirect value.
func TestResolvePackageRedirectDisabled(t *testing.T) {
	_, modules, r := setup(t, map[string]string{
		"/r/x.js":             `require("pkg/a")`,
		"/r/pkg/package.json": `{"name":"pkg","react-native":{"./a.js":false}}`,
		"/r/pkg/a.js":         ``,
	}, resolver.Options{Platform: "ios"})

	from := modules.GetModule("/r/x.js")
	m, err := r.Resolve(from, "pkg/a")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if m.Kind() != module.Null {
		t.Errorf("got kind %v, want Null", m.Kind())
	}
	if m.Path() != "pkg/a" {
		t.Errorf("got path %q, want original specifier", m.Path())
	}
}

func TestResolveInstalledPackage(t *testing.T) {
	_, modules, r := setup(t, map[string]string{
		"/r/a.js": `require("left-pad")`,
		"/r/node_modules/left-pad/package.json": `{"name":"left-pad","main":"index.js"}`,
		"/r/node_modules/left-pad/index.js":     ``,
	}, resolver.Options{Platform: "ios"})

	from := modules.GetModule("/r/a.js")
	m, err := r.Resolve(from, "left-pad")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if m.Path() != "/r/node_modules/left-pad/index.js" {
		t.Errorf("got %q", m.Path())
	}
}

func TestResolveInstalledPackageWalksUpward(t *testing.T) {
	_, modules, r := setup(t, map[string]string{
		"/r/a/b/c.js": `require("dep")`,
		"/r/node_modules/dep/package.json": `{"name":"dep","main":"index.js"}`,
		"/r/node_modules/dep/index.js":     ``,
	}, resolver.Options{Platform: "ios"})

	from := modules.GetModule("/r/a/b/c.js")
	m, err := r.Resolve(from, "dep")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if m.Path() != "/r/node_modules/dep/index.js" {
		t.Errorf("got %q", m.Path())
	}
}

func TestResolveAsset(t *testing.T) {
	_, modules, r := setup(t, map[string]string{
		"/r/a.js":    `require("./logo.png")`,
		"/r/logo.png": ``,
	}, resolver.Options{Platform: "ios"})

	from := modules.GetModule("/r/a.js")
	m, err := r.Resolve(from, "/r/logo.png")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if m.Kind() != module.Asset {
		t.Errorf("got kind %v, want Asset", m.Kind())
	}
}

func TestResolveBuiltinYieldsNull(t *testing.T) {
	_, modules, r := setup(t, map[string]string{
		"/r/a.js": `require("fs")`,
	}, resolver.Options{
		Platform:       "ios",
		BuiltinModules: map[string]bool{"fs": true},
	})

	from := modules.GetModule("/r/a.js")
	m, err := r.Resolve(from, "fs")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if m.Kind() != module.Null {
		t.Errorf("got kind %v, want Null", m.Kind())
	}
}

func TestResolveUnresolvable(t *testing.T) {
	_, modules, r := setup(t, map[string]string{
		"/r/a.js": `require("nonexistent")`,
	}, resolver.Options{Platform: "ios"})

	from := modules.GetModule("/r/a.js")
	_, err := r.Resolve(from, "nonexistent")
	if err == nil {
		t.Fatal("expected an UnableToResolve error")
	}
	var unresolved *resolver.UnableToResolve
	if !isUnableToResolve(err, &unresolved) {
		t.Errorf("got error %v, want *UnableToResolve", err)
	}
}

func isUnableToResolve(err error, target **resolver.UnableToResolve) bool {
	u, ok := err.(*resolver.UnableToResolve)
	if ok {
		*target = u
	}
	return ok
}

// S10 — installed package plus relative sibling, resolved against an
// on-disk fixture tree and checked against a golden file of paths.
func TestResolveInstalledPackageFixture(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "installed-package", "/r")
	ffs, err := fastfs.New(mfs, fastfs.Options{Roots: []string{"/r"}})
	if err != nil {
		t.Fatalf("fastfs.New failed: %v", err)
	}
	assets := assetmap.New(ffs, []string{"png"})
	haste := hastemap.New(false)
	modules := module.NewCache(ffs, noopTransform, noopExtract)
	r := resolver.New(ffs, assets, haste, modules, resolver.Options{
		Platform:    "ios",
		ProjectExts: []string{"js"},
	})

	from := modules.GetModule("/r/a.js")
	left, err := r.Resolve(from, "left-pad")
	if err != nil {
		t.Fatalf("Resolve(left-pad) failed: %v", err)
	}
	util, err := r.Resolve(from, "./lib/util")
	if err != nil {
		t.Fatalf("Resolve(./lib/util) failed: %v", err)
	}

	got, err := json.MarshalIndent([]string{left.Path(), util.Path()}, "", "  ")
	if err != nil {
		t.Fatalf("marshaling resolved paths failed: %v", err)
	}
	got = append(got, '\n')

	testutil.UpdateGoldenFile(t, "golden/installed-package-requires.json", got)
	want := testutil.LoadGoldenFile(t, "golden/installed-package-requires.json")
	if string(got) != string(want) {
		t.Errorf("resolved paths %s, want %s", got, want)
	}
}
