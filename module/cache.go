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

package module

import (
	"path/filepath"
	"strings"
	"sync"

	"mappa.dev/depgraph/fastfs"
	"mappa.dev/depgraph/internal/metacache"
	"mappa.dev/depgraph/internal/resolvererr"
	"mappa.dev/depgraph/pkgjson"
)

type identity struct {
	kind Kind
	path string
}

// Cache is the deduplicating registry of Module instances by canonical
// path, plus a pkgjson.Cache for parsed package.json files, with factory
// methods that create on miss and return the same instance on hit, and a
// case-insensitive collision guard alongside the case-sensitive path
// registry.
type Cache struct {
	ffs             *fastfs.Fastfs
	transform       TransformFunc
	extractRequires ExtractRequiresFunc
	metaCache       *metacache.Cache

	mu       sync.RWMutex
	modules  map[string]*Module
	pkgCache pkgjson.Cache

	// packageForModule is the "weak map" from
	// getPackageForModule, keyed by module path. Go has no weak maps; the
	// cached Package is simply invalidated in lockstep with the owning
	// Cache entry on a Fastfs delete event.
	packageForModule map[string]*pkgjson.Package

	// moduleIDs/conflicts implement the case-insensitivity collision guard:
	// two distinct canonical paths whose lower-cased form collides.
	moduleIDs map[string]identity
	conflicts map[string]bool
}

// NewCache builds an empty Cache. transform and extractRequires realize the
// external transformCode/extractRequires contracts used by every Source
// module it creates.
func NewCache(ffs *fastfs.Fastfs, transform TransformFunc, extractRequires ExtractRequiresFunc) *Cache {
	return &Cache{
		ffs:              ffs,
		transform:        transform,
		extractRequires:  extractRequires,
		modules:          make(map[string]*Module),
		pkgCache:         pkgjson.NewMemoryCache(),
		packageForModule: make(map[string]*pkgjson.Package),
		moduleIDs:        make(map[string]identity),
		conflicts:        make(map[string]bool),
	}
}

// SetMetaCache wires metaCache into every Source module this Cache
// creates from now on, persisting their readSource/docblockID results
// across process runs. Must be called before any GetModule call.
func (c *Cache) SetMetaCache(mc *metacache.Cache) {
	c.metaCache = mc
}

func (c *Cache) registerIdentity(kind Kind, path string) {
	lower := strings.ToLower(path)
	if existing, ok := c.moduleIDs[lower]; ok {
		if existing.path != path {
			c.conflicts[lower] = true
		}
		return
	}
	c.moduleIDs[lower] = identity{kind: kind, path: path}
}

// HasConflict reports whether path's lower-cased identity collides with a
// distinct canonical path already registered in the cache.
func (c *Cache) HasConflict(path string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conflicts[strings.ToLower(path)]
}

// GetModule returns the Source module for path, creating it on first
// access. Repeated calls for the same canonical path return the same
// instance.
func (c *Cache) GetModule(path string) *Module {
	c.mu.RLock()
	if m, ok := c.modules[path]; ok {
		c.mu.RUnlock()
		return m
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.modules[path]; ok {
		return m
	}
	m := NewSource(path, c.ffs, c.transform, c.extractRequires)
	if c.metaCache != nil {
		m.SetMetaCache(c.metaCache)
	}
	c.modules[path] = m
	c.registerIdentity(Source, path)
	return m
}

// GetAssetModule returns the Asset module for path, creating it on miss.
func (c *Cache) GetAssetModule(path string) *Module {
	c.mu.RLock()
	if m, ok := c.modules[path]; ok {
		c.mu.RUnlock()
		return m
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.modules[path]; ok {
		return m
	}
	m := NewAsset(path)
	c.modules[path] = m
	c.registerIdentity(Asset, path)
	return m
}

// GetNullModule returns the Null module for specifier, creating it on
// miss. Null modules are keyed by the original specifier string, not a
// filesystem path ("resolves to a NullModule whose path is the
// original specifier").
func (c *Cache) GetNullModule(specifier string) *Module {
	c.mu.RLock()
	if m, ok := c.modules[specifier]; ok {
		c.mu.RUnlock()
		return m
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.modules[specifier]; ok {
		return m
	}
	m := NewNull(specifier)
	c.modules[specifier] = m
	return m
}

// PutPolyfillModule registers an externally-constructed Polyfill module
// (createPolyfill) under its own file path, creating on miss
// and returning the existing instance on a repeat call for the same path.
func (c *Cache) PutPolyfillModule(file, id string, dependencies []string) *Module {
	c.mu.RLock()
	if m, ok := c.modules[file]; ok {
		c.mu.RUnlock()
		return m
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.modules[file]; ok {
		return m
	}
	m := NewPolyfill(file, id, dependencies)
	c.modules[file] = m
	c.registerIdentity(Polyfill, file)
	return m
}

// GetPackage returns the parsed package.json at path, creating it on miss.
// Loading is single-flighted through pkgCache.GetOrLoad: concurrent callers
// for the same path share one read-and-parse instead of racing.
func (c *Cache) GetPackage(path string) (*pkgjson.Package, error) {
	return c.pkgCache.GetOrLoad(path, func() (*pkgjson.Package, error) {
		data, err := c.ffs.ReadFile(path)
		if err != nil {
			return nil, err
		}
		pkg, err := pkgjson.Parse(data)
		if err != nil {
			return nil, &resolvererr.MalformedPackage{Path: path, Err: err}
		}
		pkg.Path = path
		pkg.Root = filepath.Dir(path)
		return pkg, nil
	})
}

// GetPackageForModule returns the package.json owning m, found via the
// nearest ancestor directory containing one (Fastfs.Closest), caching the
// mapping from m's path. Returns (nil, nil) when no
// package.json is found.
func (c *Cache) GetPackageForModule(m *Module) (*pkgjson.Package, error) {
	c.mu.RLock()
	if pkg, ok := c.packageForModule[m.path]; ok {
		c.mu.RUnlock()
		return pkg, nil
	}
	c.mu.RUnlock()

	found := c.ffs.Closest(m.path, "package.json")
	if found == "" {
		return nil, nil
	}
	pkg, err := c.GetPackage(found)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.packageForModule[m.path] = pkg
	c.mu.Unlock()
	return pkg, nil
}

// Lookup returns the Module already registered for path, without creating
// one. Returns nil on a miss.
func (c *Cache) Lookup(path string) *Module {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modules[path]
}

// Invalidate applies a Fastfs change event to the cache: on a content
// change, drops the module's cached transform results (it will be
// re-transformed on next Read); on delete, evicts the module/package
// record entirely so a later GetModule starts fresh.
func (c *Cache) Invalidate(path string, deleted bool) {
	c.mu.Lock()
	m, hasModule := c.modules[path]
	if deleted {
		delete(c.modules, path)
		delete(c.packageForModule, path)
		delete(c.moduleIDs, strings.ToLower(path))
		delete(c.conflicts, strings.ToLower(path))
	}
	c.mu.Unlock()

	if !deleted && hasModule {
		m.invalidate()
	}
	// package.json is re-parsed lazily: drop it so GetPackage reloads.
	c.pkgCache.Invalidate(path)
}
