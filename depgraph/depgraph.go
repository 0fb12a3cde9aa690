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

// Package depgraph wires fastfs, assetmap, hastemap, pkgjson, the module
// registry, the resolver, and the resolution cache into the single
// DependencyGraph facade: getDependencies,
// getShallowDependencies, getModuleForPath, matchFilesByPattern, and
// createPolyfill.
package depgraph

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"

	"mappa.dev/depgraph/assetmap"
	"mappa.dev/depgraph/fastfs"
	"mappa.dev/depgraph/fs"
	"mappa.dev/depgraph/hastemap"
	"mappa.dev/depgraph/internal/logging"
	"mappa.dev/depgraph/internal/metacache"
	"mappa.dev/depgraph/module"
	"mappa.dev/depgraph/pkgjson"
	"mappa.dev/depgraph/resolutioncache"
	"mappa.dev/depgraph/resolver"
	"mappa.dev/depgraph/response"
)

// Options configures a DependencyGraph.
type Options struct {
	ProjectRoots []string
	AssetRoots   []string
	LazyRoots    []string

	ProjectExts []string
	AssetExts   []string

	Platforms            []string
	PreferNativePlatform bool

	Blacklist        func(path string) bool
	ExtraNodeModules map[string]string
	Redirect         resolver.RedirectTable
	BuiltinModules   map[string]bool

	TransformCode   module.TransformFunc
	ExtractRequires module.ExtractRequiresFunc

	// Logger receives a Warning for every UnableToResolve that escapes a
	// GetDependencies call with no explicit OnError, and for a haste snapshot
	// that fails to marshal or write. Nothing is logged at Debug level.
	// Defaults to logging.Nop.
	Logger logging.Logger

	// HasteSnapshotPath, if set, is where the informational haste snapshot
	// JSON file (name -> path-relative-to-project-root) is
	// written after the initial haste build and after every haste-affecting
	// file change. Never read back; purely a diagnostic artifact.
	HasteSnapshotPath string

	// MetaCachePath, if set, persists every Source module's transform and
	// docblock results under this directory across process runs, validated
	// against each file's mod time. Disabled (no persistence) when empty.
	MetaCachePath string
}

// GetDependenciesRequest is the getDependencies argument record.
type GetDependenciesRequest struct {
	EntryFile string
	Platform  string
	// Recursive, when true, follows every transitive require() (the usual
	// bundler case); when false, only the entry's own edges are resolved.
	Recursive        bool
	TransformOptions module.TransformOptions
	OnProgress       resolutioncache.OnProgressFunc
	OnError          resolutioncache.OnErrorFunc
}

// DependencyGraph is one project's live, incrementally-maintained
// dependency graph: shared Fastfs/AssetMap/HasteMap/ModuleCache indices,
// plus one Resolver and ResolutionCache per requested platform (a module
// can resolve a specifier differently per platform, so the resolved
// subgraph is platform-scoped, per the resolver's platform fallback step).
type DependencyGraph struct {
	opts Options
	fsys fs.FileSystem

	ffs       *fastfs.Fastfs
	assets    *assetmap.AssetMap
	haste     *hastemap.HasteMap
	modules   *module.Cache
	metaCache *metacache.Cache

	mu        sync.Mutex
	resolvers map[string]*resolver.Resolver
	caches    map[string]*resolutioncache.ResolutionCache

	watcher *fastfs.Watcher
}

// New crawls every project/asset root, builds the haste index, and
// returns a ready-to-use DependencyGraph. fsys is the filesystem backing
// every read (an OS filesystem in production, an in-memory one in tests).
func New(fsys fs.FileSystem, opts Options) (*DependencyGraph, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Nop{}
	}
	allRoots := append(append([]string{}, opts.ProjectRoots...), opts.AssetRoots...)
	ffs, err := fastfs.New(fsys, fastfs.Options{
		Roots:     allRoots,
		LazyRoots: opts.LazyRoots,
		Blacklist: opts.Blacklist,
	})
	if err != nil {
		return nil, fmt.Errorf("depgraph: building fastfs: %w", err)
	}

	assets := assetmap.New(ffs, opts.AssetExts)
	haste := hastemap.New(opts.PreferNativePlatform)
	modules := module.NewCache(ffs, opts.TransformCode, opts.ExtractRequires)

	var metaCache *metacache.Cache
	if opts.MetaCachePath != "" {
		metaCache = metacache.New(fsys, opts.MetaCachePath)
		modules.SetMetaCache(metaCache)
	}

	dg := &DependencyGraph{
		opts:      opts,
		fsys:      fsys,
		ffs:       ffs,
		assets:    assets,
		haste:     haste,
		modules:   modules,
		metaCache: metaCache,
		resolvers: make(map[string]*resolver.Resolver),
		caches:    make(map[string]*resolutioncache.ResolutionCache),
	}

	if err := dg.buildHaste(); err != nil {
		return nil, fmt.Errorf("depgraph: building haste map: %w", err)
	}
	dg.writeHasteSnapshot()

	ffs.OnChange(dg.onFileChange)

	return dg, nil
}

// Flush forces every pending debounced metaCache write to disk
// immediately, for one-shot callers (e.g. `depgraph resolve`) that exit
// before the cache's own debounce window would otherwise fire. A no-op
// when MetaCachePath was never set.
func (dg *DependencyGraph) Flush() {
	if dg.metaCache != nil {
		dg.metaCache.Flush()
	}
}

// HasteSnapshot returns the current name -> path-relative-to-project-root
// haste map, per the informational snapshot contract.
func (dg *DependencyGraph) HasteSnapshot() map[string]string {
	raw := dg.haste.Snapshot()
	out := make(map[string]string, len(raw))
	for name, path := range raw {
		out[name] = dg.relativeToProjectRoot(path)
	}
	return out
}

func (dg *DependencyGraph) relativeToProjectRoot(path string) string {
	for _, root := range dg.opts.ProjectRoots {
		if rel, err := filepath.Rel(root, path); err == nil && filepath.IsLocal(rel) {
			return rel
		}
	}
	return path
}

// writeHasteSnapshot persists HasteSnapshot() to opts.HasteSnapshotPath, if
// set. Failures are logged, not returned: the snapshot is informational and
// must never block indexing or resolution.
func (dg *DependencyGraph) writeHasteSnapshot() {
	if dg.opts.HasteSnapshotPath == "" {
		return
	}
	data, err := json.MarshalIndent(dg.HasteSnapshot(), "", "  ")
	if err != nil {
		dg.opts.Logger.Warning("marshaling haste snapshot: %v", err)
		return
	}
	if err := dg.fsys.WriteFile(dg.opts.HasteSnapshotPath, data, 0o644); err != nil {
		dg.opts.Logger.Warning("writing haste snapshot to %q: %v", dg.opts.HasteSnapshotPath, err)
	}
}

// buildHaste scans every project-extension file for a haste name (docblock
// tag, or package-main membership) and every package.json for its own
// haste-eligible name.
func (dg *DependencyGraph) buildHaste() error {
	for _, path := range dg.ffs.FindFilesByExts(dg.opts.ProjectExts) {
		m := dg.modules.GetModule(path)
		pkg, err := dg.modules.GetPackageForModule(m)
		if err != nil {
			continue // malformed package.json during indexing is swallowed
		}
		name, ok, err := m.HasteName(pkg)
		if err != nil || !ok {
			continue
		}
		p := hastemap.PlatformForPath(path, dg.opts.Platforms)
		if err := dg.haste.Update(name, p, hastemap.Entry{Kind: hastemap.EntryModule, Path: path}); err != nil {
			return err
		}
	}

	for _, path := range dg.ffs.FindFilesByExts([]string{"json"}) {
		if filepath.Base(path) != "package.json" {
			continue
		}
		pkg, err := dg.modules.GetPackage(path)
		if err != nil {
			continue
		}
		if !pkg.IsHaste() {
			continue
		}
		if err := dg.haste.Update(pkg.Name, hastemap.Generic, hastemap.Entry{Kind: hastemap.EntryPackage, Path: pkg.Root}); err != nil {
			return err
		}
	}
	return nil
}

func (dg *DependencyGraph) onFileChange(kind fastfs.ChangeKind, relPath, rootPath string) {
	absPath := filepath.Join(rootPath, relPath)

	dg.mu.Lock()
	caches := make([]*resolutioncache.ResolutionCache, 0, len(dg.caches))
	for _, c := range dg.caches {
		caches = append(caches, c)
	}
	dg.mu.Unlock()

	if existing := dg.modules.Lookup(absPath); existing != nil {
		for _, c := range caches {
			if res, ok := c.Lookup(existing); ok {
				res.MarkDirty()
			}
		}
	}

	dg.modules.Invalidate(absPath, kind == fastfs.Delete)

	_ = dg.haste.ProcessFileChange(absPath, func() (name, platform string, entry hastemap.Entry, ok bool) {
		if kind == fastfs.Delete {
			return "", "", hastemap.Entry{}, false
		}
		m := dg.modules.GetModule(absPath)
		pkg, err := dg.modules.GetPackageForModule(m)
		if err != nil {
			return "", "", hastemap.Entry{}, false
		}
		n, hasName, err := m.HasteName(pkg)
		if err != nil || !hasName {
			return "", "", hastemap.Entry{}, false
		}
		return n, hastemap.PlatformForPath(absPath, dg.opts.Platforms), hastemap.Entry{Kind: hastemap.EntryModule, Path: absPath}, true
	})
	dg.writeHasteSnapshot()
}

// OnChange subscribes fn to run once per underlying filesystem change,
// after this graph's own invalidation/dirty-marking has already run for
// that change. Intended for callers (e.g. `depgraph watch`) that want to
// re-run GetDependencies and reprint whenever the graph might have moved;
// fn is responsible for its own debouncing if it does anything expensive.
func (dg *DependencyGraph) OnChange(fn func()) {
	dg.ffs.OnChange(func(kind fastfs.ChangeKind, relPath, rootPath string) {
		fn()
	})
}

// Watch starts an fsnotify-backed Watcher over every project/asset root,
// feeding real OS change events into this graph. Callers own the returned
// Watcher's lifetime (Run in a goroutine, Close to stop).
func (dg *DependencyGraph) Watch() (*fastfs.Watcher, error) {
	allRoots := append(append([]string{}, dg.opts.ProjectRoots...), dg.opts.AssetRoots...)
	w, err := fastfs.NewWatcher(dg.ffs, allRoots)
	if err != nil {
		return nil, err
	}
	dg.watcher = w
	return w, nil
}

func (dg *DependencyGraph) resolverFor(platform string) *resolver.Resolver {
	dg.mu.Lock()
	defer dg.mu.Unlock()
	if r, ok := dg.resolvers[platform]; ok {
		return r
	}
	r := resolver.New(dg.ffs, dg.assets, dg.haste, dg.modules, resolver.Options{
		Platform:             platform,
		Platforms:            dg.opts.Platforms,
		PreferNativePlatform: dg.opts.PreferNativePlatform,
		ProjectExts:          dg.opts.ProjectExts,
		ProjectRoots:         dg.opts.ProjectRoots,
		ExtraNodeModules:     dg.opts.ExtraNodeModules,
		Redirect:             dg.opts.Redirect,
		BuiltinModules:       dg.opts.BuiltinModules,
	})
	dg.resolvers[platform] = r
	return r
}

func (dg *DependencyGraph) cacheFor(platform string) *resolutioncache.ResolutionCache {
	dg.mu.Lock()
	if c, ok := dg.caches[platform]; ok {
		dg.mu.Unlock()
		return c
	}
	dg.mu.Unlock()

	r := dg.resolverFor(platform)
	c := resolutioncache.New(r)

	dg.mu.Lock()
	if existing, ok := dg.caches[platform]; ok {
		dg.mu.Unlock()
		return existing
	}
	dg.caches[platform] = c
	dg.mu.Unlock()
	return c
}

// mainModuleID resolves a module's haste name, falling back to its path
// relative to the first matching project root.
func (dg *DependencyGraph) mainModuleID(m *module.Module) string {
	pkg, err := dg.modules.GetPackageForModule(m)
	if err == nil {
		if name, ok, err := m.HasteName(pkg); err == nil && ok {
			return name
		}
	}
	return dg.relativeToProjectRoot(m.Path())
}

// GetDependencies implements the primary getDependencies
// operation: resolves and (if Recursive) transitively reloads req.EntryFile,
// then waits for the platform-scoped cache to settle and returns the
// discovery-ordered Response.
func (dg *DependencyGraph) GetDependencies(req GetDependenciesRequest) (*response.Response, error) {
	absEntry, err := filepath.Abs(req.EntryFile)
	if err != nil {
		return nil, fmt.Errorf("depgraph: resolving entry path: %w", err)
	}

	onError := req.OnError
	if onError == nil {
		onError = func(from *module.Module, specifier string, err error) {
			dg.opts.Logger.Warning("unresolved %q from %q: %v", specifier, from.Path(), err)
		}
	}

	cache := dg.cacheFor(req.Platform)
	entry := dg.modules.GetModule(absEntry)
	resp := response.New(cache)
	defer resp.Close()
	entryRes := cache.Pin(entry)

	<-entryRes.ReloadRequires(req.TransformOptions, req.Recursive, false, onError, req.OnProgress)

	if err := resp.AllResolved(req.TransformOptions, onError, req.OnProgress, dg.mainModuleID); err != nil {
		return resp, err
	}
	return resp, nil
}

// ResolvedEdges returns m's resolved specifier -> target-file-path edges
// for platform, as recorded by that platform's ResolutionCache. Used by
// diagnostic tooling (`depgraph trace`) to dump the graph one module's
// edges at a time; returns nil if m has no Resolution yet for platform.
func (dg *DependencyGraph) ResolvedEdges(platform string, m *module.Module) map[string]string {
	cache := dg.cacheFor(platform)
	res, ok := cache.Lookup(m)
	if !ok {
		return nil
	}
	edges := make(map[string]string)
	for spec, target := range res.Resolved() {
		edges[spec] = target.Path()
	}
	return edges
}

// GetShallowDependencies returns entryFile's immediate require() specifier
// list without resolving or recursing.
func (dg *DependencyGraph) GetShallowDependencies(entryFile string, opts module.TransformOptions) ([]string, error) {
	absEntry, err := filepath.Abs(entryFile)
	if err != nil {
		return nil, fmt.Errorf("depgraph: resolving entry path: %w", err)
	}
	m := dg.modules.GetModule(absEntry)
	return m.ReadDependencies(opts)
}

// GetModuleForPath returns the Source module registered for path,
// creating it on first access.
func (dg *DependencyGraph) GetModuleForPath(path string) (*module.Module, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("depgraph: resolving path: %w", err)
	}
	return dg.modules.GetModule(absPath), nil
}

// MatchFilesByPattern returns every indexed file path matching pattern.
func (dg *DependencyGraph) MatchFilesByPattern(pattern *regexp.Regexp) []string {
	return dg.ffs.MatchFilesByPattern(pattern)
}

// CreatePolyfill registers a synthetic Polyfill module, for injection
// ahead of a Response's real dependencies via response.Copy.
func (dg *DependencyGraph) CreatePolyfill(file, id string, dependencies []string) *module.Module {
	return dg.modules.PutPolyfillModule(file, id, dependencies)
}

// Pkg exposes the pkgjson.Package for an owning package.json, for callers
// that need it directly (e.g. a CLI dumping package metadata).
func (dg *DependencyGraph) Pkg(path string) (*pkgjson.Package, error) {
	return dg.modules.GetPackage(path)
}
