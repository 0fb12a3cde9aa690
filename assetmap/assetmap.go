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

// Package assetmap indexes non-source asset files (images, fonts) by
// logical name, platform, and resolution scale.
package assetmap

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"mappa.dev/depgraph/fastfs"
)

// Asset is one scale variant of a logical asset.
type Asset struct {
	Scale    float64
	Path     string
	Platform string // "" for platform-less variants
}

// entry holds every known scale variant of one logical asset name, kept
// sorted by ascending scale.
type entry struct {
	assets []Asset
}

// AssetMap indexes asset files under a set of asset roots.
type AssetMap struct {
	mu  sync.RWMutex
	ext map[string]bool // allowed asset extensions, without leading dot

	// byKey maps "logicalName\x00platform" -> entry; platform "" is the
	// platform-less key used as a fallback.
	byKey map[string]*entry
}

var assetNamePattern = regexp.MustCompile(`^(.*?)(?:@([\d.]+)x)?(?:\.([a-zA-Z0-9]+))?\.([a-zA-Z0-9]+)$`)

// New builds an AssetMap by scanning ffs for every indexed file whose
// extension is in assetExts.
func New(ffs *fastfs.Fastfs, assetExts []string) *AssetMap {
	am := &AssetMap{
		ext:   make(map[string]bool, len(assetExts)),
		byKey: make(map[string]*entry),
	}
	for _, e := range assetExts {
		am.ext[strings.TrimPrefix(e, ".")] = true
	}

	for _, path := range ffs.FindFilesByExts(assetExts) {
		am.index(path)
	}
	return am
}

func key(name, platform string) string {
	return name + "\x00" + platform
}

// index parses one asset file's name into (logicalName, scale, platform,
// ext) and inserts it into the map.
func (am *AssetMap) index(path string) {
	base := filepath.Base(path)
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	if !am.ext[ext] {
		return
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	name := stem
	scale := 1.0
	platform := ""

	if idx := strings.LastIndex(stem, "@"); idx >= 0 {
		rest := stem[idx+1:]
		if strings.HasSuffix(rest, "x") {
			if s, err := strconv.ParseFloat(strings.TrimSuffix(rest, "x"), 64); err == nil {
				scale = s
				name = stem[:idx]
			}
		}
	}
	// A trailing ".<platform>" after scale stripping (e.g. "icon.ios").
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		candidate := name[idx+1:]
		if candidate != "" && !strings.ContainsAny(candidate, "0123456789") {
			platform = candidate
			name = name[:idx]
		}
	}

	am.mu.Lock()
	defer am.mu.Unlock()

	k := key(name, platform)
	e, ok := am.byKey[k]
	if !ok {
		e = &entry{}
		am.byKey[k] = e
	}
	e.assets = append(e.assets, Asset{Scale: scale, Path: path, Platform: platform})
	sort.Slice(e.assets, func(i, j int) bool { return e.assets[i].Scale < e.assets[j].Scale })
}

// Resolve handles the two specifier forms:
//  1. An absolute path with a known asset extension: the sibling file
//     matching ^{name}(@[\d.]+x)?(\.{platform})?\.{type}$ in the directory.
//  2. The legacy "image!foo" form: lookup by logical name, falling back to
//     the platform-less key, returning the first (smallest) scale.
//
// Returns ("", false) on a miss.
func (am *AssetMap) Resolve(specifier string, platform string) (string, bool) {
	if strings.HasPrefix(specifier, "image!") {
		name := strings.TrimPrefix(specifier, "image!")
		return am.resolveByName(name, platform)
	}
	if filepath.IsAbs(specifier) {
		return am.resolveAbsolute(specifier, platform)
	}
	return "", false
}

func (am *AssetMap) resolveByName(name, platform string) (string, bool) {
	am.mu.RLock()
	defer am.mu.RUnlock()

	if e, ok := am.byKey[key(name, platform)]; ok && len(e.assets) > 0 {
		return e.assets[0].Path, true
	}
	if e, ok := am.byKey[key(name, "")]; ok && len(e.assets) > 0 {
		return e.assets[0].Path, true
	}
	return "", false
}

func (am *AssetMap) resolveAbsolute(specifier string, platform string) (string, bool) {
	ext := strings.TrimPrefix(filepath.Ext(specifier), ".")
	if !am.ext[ext] {
		return "", false
	}
	dir := filepath.Dir(specifier)
	base := strings.TrimSuffix(filepath.Base(specifier), filepath.Ext(specifier))

	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `(@[\d.]+x)?(\.` + regexp.QuoteMeta(platform) + `)?\.` + regexp.QuoteMeta(ext) + `$`)

	am.mu.RLock()
	defer am.mu.RUnlock()

	var candidates []Asset
	for _, e := range am.byKey {
		for _, a := range e.assets {
			if filepath.Dir(a.Path) != dir {
				continue
			}
			if pattern.MatchString(filepath.Base(a.Path)) {
				candidates = append(candidates, a)
			}
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Scale < candidates[j].Scale })
	return candidates[0].Path, true
}
