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

// Package module implements the four tagged module kinds
// (Source, Asset, Null, Polyfill) as a single type discriminated by Kind,
// replacing dynamic dispatch with per-kind branches in the handful of
// operations that actually differ: Read, IsHaste and HasteName
// (ReadDependencies goes through Read).
package module

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"mappa.dev/depgraph/fastfs"
	"mappa.dev/depgraph/internal/metacache"
	"mappa.dev/depgraph/pkgjson"
)

// Kind discriminates the fixed set of module variants.
type Kind int

const (
	Source Kind = iota
	Asset
	Null
	Polyfill
)

func (k Kind) String() string {
	switch k {
	case Source:
		return "source"
	case Asset:
		return "asset"
	case Null:
		return "null"
	case Polyfill:
		return "polyfill"
	default:
		return "unknown"
	}
}

// TransformOptions is an opaque bag of transform parameters. Its identity
// for caching purposes is Hash(), a stable digest over its sorted keys, per
// the "stable hash of transformOptions" persistence key.
type TransformOptions map[string]string

// Hash returns a stable digest of opts, independent of map iteration order.
func (opts TransformOptions) Hash() string {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(opts[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TransformResult is the external transformCode contract's return shape:
// "{code, dependencies?, map?}". Dependencies is optional; a nil slice
// means the caller should derive them via extractRequires.
type TransformResult struct {
	Code         string
	Dependencies []string
	Map          string
}

// TransformFunc is the external transformCode contract.
type TransformFunc func(m *Module, source []byte, opts TransformOptions) (TransformResult, error)

// ExtractRequiresFunc is the external extractRequires contract.
type ExtractRequiresFunc func(code []byte) ([]string, error)

// ReadResult is the shape every module kind's Read returns.
type ReadResult struct {
	Code         string
	Dependencies []string
	ID           string
}

type transformEntry struct {
	once   sync.Once
	result ReadResult
	err    error
}

// Module is a single node of the dependency graph. Behavior that differs by
// Kind is expressed as a switch in Read and as a Source-only guard in
// IsHaste and HasteName; ReadDependencies goes through Read, and every
// other operation (Path, Equal) is kind-independent.
type Module struct {
	path string
	kind Kind

	// Source fields.
	ffs             *fastfs.Fastfs
	transform       TransformFunc
	extractRequires ExtractRequiresFunc

	// metaCache, when non-nil, persists readSource and docblockID results
	// across process runs, validated against the file's mod time. Set once
	// by the owning Cache before the module is exposed to callers.
	metaCache *metacache.Cache

	docOnce sync.Once
	docID   string
	docErr  error

	cacheMu sync.Mutex
	cache   map[string]*transformEntry // keyed by TransformOptions.Hash()

	// Null field: the original specifier that failed/was disabled to
	// resolve, preserved as the Null module's reported path.
	nullSpecifier string

	// Polyfill fields.
	polyfillID  string
	polyfillDep []string
}

// NewSource constructs a Source module backed by ffs, using transform and
// extractRequires to realize the external transformCode/extractRequires
// contracts.
func NewSource(path string, ffs *fastfs.Fastfs, transform TransformFunc, extractRequires ExtractRequiresFunc) *Module {
	return &Module{
		path:            path,
		kind:            Source,
		ffs:             ffs,
		transform:       transform,
		extractRequires: extractRequires,
		cache:           make(map[string]*transformEntry),
	}
}

// NewAsset constructs an Asset module: no deps, no code body.
func NewAsset(path string) *Module {
	return &Module{path: path, kind: Asset}
}

// NewNull constructs a Null module for a disabled or platform-absent
// dependency. Its reported Path is the original specifier.
func NewNull(specifier string) *Module {
	return &Module{path: specifier, kind: Null, nullSpecifier: specifier}
}

// NewPolyfill constructs a synthetic Polyfill module with a caller-supplied
// id and fixed dependency list.
func NewPolyfill(file, id string, dependencies []string) *Module {
	return &Module{path: file, kind: Polyfill, polyfillID: id, polyfillDep: dependencies}
}

// SetMetaCache wires m to a persistent cache of its readSource/docblockID
// results. Must be called before m is shared across goroutines; the owning
// Cache does this immediately after construction.
func (m *Module) SetMetaCache(mc *metacache.Cache) {
	m.metaCache = mc
}

// Path returns the module's canonical absolute path.
func (m *Module) Path() string { return m.path }

// Kind returns the module's tagged variant.
func (m *Module) Kind() Kind { return m.kind }

// Equal reports whether m and other identify the same module: path
// equality.
func (m *Module) Equal(other *Module) bool {
	if other == nil {
		return false
	}
	return m.path == other.path
}

const metaFieldDocblockID = "docblockID"

// docblockID reads the file's leading comment once and extracts a
// @providesModule or @provides tag, caching the result (and any read
// error) for the module's lifetime, and persisting it to metaCache when
// one is wired.
func (m *Module) docblockID() (string, error) {
	m.docOnce.Do(func() {
		if m.kind != Source {
			return
		}

		modTime, haveModTime := m.statModTime()
		if haveModTime && m.metaCache != nil {
			if v, ok := m.metaCache.Get(m.path, metaFieldDocblockID, "", modTime); ok {
				m.docID = v
				return
			}
		}

		header, err := m.ffs.ReadWhile(m.path, 1024, func(chunk []byte, i int, acc []byte) bool {
			// A docblock lives in the first chunk or two; stop once we've
			// seen a closing "*/" or accumulated more than we'll ever need.
			return i < 2 && !bytes.Contains(acc, []byte("*/"))
		})
		if err != nil {
			m.docErr = err
			return
		}
		m.docID = parseProvidesTag(header)

		if haveModTime && m.metaCache != nil {
			m.metaCache.Put(m.path, metaFieldDocblockID, "", m.docID, modTime)
		}
	})
	return m.docID, m.docErr
}

// statModTime returns the module's current on-disk modification time, used
// as the metaCache validation key. ok is false when the module has no
// Fastfs-backed filesystem or the stat fails (e.g. an in-memory test
// filesystem that doesn't implement Stat meaningfully).
func (m *Module) statModTime() (modTime time.Time, ok bool) {
	if m.ffs == nil {
		return time.Time{}, false
	}
	info, err := m.ffs.Stat(m.path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

var providesTags = [][]byte{[]byte("@providesModule"), []byte("@provides")}

func parseProvidesTag(header []byte) string {
	for _, tag := range providesTags {
		idx := bytes.Index(header, tag)
		if idx < 0 {
			continue
		}
		rest := header[idx+len(tag):]
		rest = bytes.TrimLeft(rest, " \t")
		end := bytes.IndexAny(rest, " \t\r\n*")
		if end < 0 {
			end = len(rest)
		}
		if end > 0 {
			return string(rest[:end])
		}
	}
	return ""
}

// IsHaste reports whether this module participates in haste-name
// resolution: its docblock declares @providesModule/
// @provides, or it is the main module of a haste-compatible package.
// ownerPackage may be nil when the module has no owning package.json.
func (m *Module) IsHaste(ownerPackage *pkgjson.Package) (bool, error) {
	if m.kind != Source {
		return false, nil
	}
	id, err := m.docblockID()
	if err != nil {
		return false, err
	}
	if id != "" {
		return true, nil
	}
	if ownerPackage != nil && ownerPackage.IsHaste() && ownerPackage.GetMain() == m.path {
		return true, nil
	}
	return false, nil
}

// HasteName returns the name this module would be indexed under in the
// haste map: its docblock @providesModule/@provides tag if present,
// otherwise its owning package's name if it is that package's main module.
// ok is false when the module doesn't participate in haste-name
// resolution at all.
func (m *Module) HasteName(ownerPackage *pkgjson.Package) (name string, ok bool, err error) {
	if m.kind != Source {
		return "", false, nil
	}
	id, err := m.docblockID()
	if err != nil {
		return "", false, err
	}
	if id != "" {
		return id, true, nil
	}
	if ownerPackage != nil && ownerPackage.IsHaste() && ownerPackage.GetMain() == m.path {
		return ownerPackage.Name, true, nil
	}
	return "", false, nil
}

// Read realizes the module per its Kind, returning {code, dependencies, id}.
// For Source modules this transforms the file (at most
// once per TransformOptions, via a per-options cached future) and derives
// dependencies from the transform result or, absent those, from
// extractRequires.
func (m *Module) Read(opts TransformOptions) (ReadResult, error) {
	switch m.kind {
	case Source:
		return m.readSource(opts)
	case Asset:
		return ReadResult{ID: m.path}, nil
	case Null:
		return ReadResult{Code: "module.exports = null", ID: m.nullSpecifier}, nil
	case Polyfill:
		return ReadResult{ID: m.polyfillID, Dependencies: append([]string(nil), m.polyfillDep...)}, nil
	default:
		return ReadResult{}, fmt.Errorf("module: unknown kind %v", m.kind)
	}
}

const (
	metaFieldCode = "code"
	metaFieldDeps = "deps"
	metaFieldID   = "id"
)

// cachedDeps JSON-encodes a dependency list for storage as one metacache
// Entry value, since entries are plain strings.
type cachedDeps struct {
	Dependencies []string `json:"dependencies"`
}

func (m *Module) readSource(opts TransformOptions) (ReadResult, error) {
	key := opts.Hash()

	m.cacheMu.Lock()
	entry, ok := m.cache[key]
	if !ok {
		entry = &transformEntry{}
		m.cache[key] = entry
	}
	m.cacheMu.Unlock()

	entry.once.Do(func() {
		modTime, haveModTime := m.statModTime()
		if haveModTime && m.metaCache != nil {
			if result, ok := m.readCachedMeta(key, modTime); ok {
				entry.result = result
				return
			}
		}

		source, err := m.ffs.ReadFile(m.path)
		if err != nil {
			entry.err = err
			return
		}
		result, err := m.transform(m, source, opts)
		if err != nil {
			entry.err = err
			return
		}
		deps := result.Dependencies
		if deps == nil && m.extractRequires != nil {
			deps, err = m.extractRequires([]byte(result.Code))
			if err != nil {
				entry.err = err
				return
			}
		}
		id, idErr := m.docblockID()
		if idErr != nil {
			entry.err = idErr
			return
		}
		if id == "" {
			id = m.path
		}
		entry.result = ReadResult{Code: result.Code, Dependencies: deps, ID: id}

		if haveModTime && m.metaCache != nil {
			m.putCachedMeta(key, modTime, entry.result)
		}
	})
	return entry.result, entry.err
}

// readCachedMeta returns the persisted ReadResult for (m.path, key) if
// every field (code, deps, id) is present and still valid against modTime.
func (m *Module) readCachedMeta(key string, modTime time.Time) (ReadResult, bool) {
	code, ok := m.metaCache.Get(m.path, metaFieldCode, key, modTime)
	if !ok {
		return ReadResult{}, false
	}
	depsJSON, ok := m.metaCache.Get(m.path, metaFieldDeps, key, modTime)
	if !ok {
		return ReadResult{}, false
	}
	id, ok := m.metaCache.Get(m.path, metaFieldID, key, modTime)
	if !ok {
		return ReadResult{}, false
	}
	var cd cachedDeps
	if err := json.Unmarshal([]byte(depsJSON), &cd); err != nil {
		return ReadResult{}, false
	}
	return ReadResult{Code: code, Dependencies: cd.Dependencies, ID: id}, true
}

func (m *Module) putCachedMeta(key string, modTime time.Time, result ReadResult) {
	depsJSON, err := json.Marshal(cachedDeps{Dependencies: result.Dependencies})
	if err != nil {
		return
	}
	m.metaCache.Put(m.path, metaFieldCode, key, result.Code, modTime)
	m.metaCache.Put(m.path, metaFieldDeps, key, string(depsJSON), modTime)
	m.metaCache.Put(m.path, metaFieldID, key, result.ID, modTime)
}

// ReadDependencies returns only the ordered specifier list from Read,
// matching the `module.readDependencies(transformOptions)` contract.
func (m *Module) ReadDependencies(opts TransformOptions) ([]string, error) {
	result, err := m.Read(opts)
	if err != nil {
		return nil, err
	}
	return result.Dependencies, nil
}

// invalidate drops any cached transform results, used when the owning
// ModuleCache observes a Fastfs "change" event for this module's path.
func (m *Module) invalidate() {
	m.cacheMu.Lock()
	m.cache = make(map[string]*transformEntry)
	m.cacheMu.Unlock()
	m.docOnce = sync.Once{}
	m.docID = ""
	m.docErr = nil
}

// MarshalJSON encodes the module's path and kind for diagnostic dumps; it
// is not read back.
func (m *Module) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Path string `json:"path"`
		Kind string `json:"kind"`
	}{Path: m.path, Kind: m.kind.String()})
}
