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

// Package pkgjson parses package.json and computes the derived values the
// resolver needs: the package's main module, and the browser/react-native
// redirection table applied to requires made from within the package. A
// package's modern "exports" field is supported as a supplemental
// resolution path, separate from the require()-time main/redirect algorithm.
package pkgjson

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"

	"mappa.dev/depgraph/fs"
	"mappa.dev/depgraph/internal/resolvererr"
	"mappa.dev/depgraph/pathutil"
)

// ErrNotExported is returned when a subpath is not exported by the package.
var ErrNotExported = errors.New("pkgjson: not exported by package.json")

// DefaultConditions is the export condition priority used when the caller
// doesn't supply its own, favoring the react-native and browser runtime
// over plain node "import"/"default".
var DefaultConditions = []string{"react-native", "browser", "import", "default"}

// workspacesObjectFormat is the object form of "workspaces", used by yarn
// classic with nohoist: {"packages": [...], "nohoist": [...]}.
type workspacesObjectFormat struct {
	Packages []string `json:"packages"`
}

// redirectTarget is one entry of a browser/react-native redirect table.
type redirectTarget struct {
	disabled bool
	target   string // relative path, no leading "./"
}

// Package represents a parsed package.json, plus the file's location so
// that main/redirect targets can be resolved to absolute paths.
type Package struct {
	// Root is the absolute directory containing this package.json.
	Root string `json:"-"`
	// Path is the absolute path to the package.json file itself.
	Path string `json:"-"`

	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Main            string            `json:"main,omitempty"`
	Module          string            `json:"module,omitempty"`
	Exports         any               `json:"exports,omitempty"`
	Imports         any               `json:"imports,omitempty"`
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
	RawWorkspaces   json.RawMessage   `json:"workspaces,omitempty"`
	RawBrowser      json.RawMessage   `json:"browser,omitempty"`
	RawReactNative  json.RawMessage   `json:"react-native,omitempty"`

	redirects      map[string]redirectTarget
	redirectsBuilt bool
}

// ExportEntry represents a single export from a package.
type ExportEntry struct {
	Subpath string // The export subpath (e.g., ".", "./button")
	Target  string // The resolved target path (e.g., "index.js")
}

// WildcardExport represents a wildcard export pattern.
type WildcardExport struct {
	Pattern string // The pattern (e.g., "./*")
	Target  string // The target prefix (e.g., "dist/")
}

// Parse parses package.json data.
func Parse(data []byte) (*Package, error) {
	var pkg Package
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}
	pkg.buildRedirects()
	return &pkg, nil
}

// ParseFile parses a package.json file, stamping Root/Path from path.
func ParseFile(fsys fs.FileSystem, path string) (*Package, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pkg, err := Parse(data)
	if err != nil {
		return nil, &resolvererr.MalformedPackage{Path: path, Err: err}
	}
	pkg.Path = path
	pkg.Root = filepath.Dir(path)
	return pkg, nil
}

// WorkspacePatterns returns the workspace glob patterns from the workspaces
// field. Handles both array format ["packages/*"] and object format
// {"packages": ["libs/*"]} (yarn classic with nohoist).
func (pkg *Package) WorkspacePatterns() []string {
	if len(pkg.RawWorkspaces) == 0 {
		return nil
	}

	var patterns []string
	if err := json.Unmarshal(pkg.RawWorkspaces, &patterns); err == nil {
		return patterns
	}

	var obj workspacesObjectFormat
	if err := json.Unmarshal(pkg.RawWorkspaces, &obj); err == nil {
		return obj.Packages
	}

	return nil
}

// HasWorkspaces returns true if the package has workspace patterns defined.
func (pkg *Package) HasWorkspaces() bool {
	return len(pkg.WorkspacePatterns()) > 0
}

// IsHaste reports whether this package participates in haste-name
// resolution: it must declare a non-empty "name".
func (pkg *Package) IsHaste() bool {
	return pkg.Name != ""
}

// GetMain computes the absolute path of the package's main module:
//   - a bare-string "react-native" field overrides "main"
//   - main defaults to "index" when absent
//   - a leading "./" and a trailing .js/.json are stripped before a
//     default ".js" extension is appended
func (pkg *Package) GetMain() string {
	main := pkg.Main
	if main == "" {
		main = "index"
	}
	if s, ok := reactNativeMainOverride(pkg.RawReactNative); ok {
		main = s
	}

	main = pathutil.StripLeadingDotSlash(main)
	main = pathutil.StripKnownSourceExt(main)
	main += ".js"

	return filepath.Join(pkg.Root, main)
}

func reactNativeMainOverride(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return "", false
}

// buildRedirects computes the merged browser/react-native redirect table.
// Both fields are merged when either is an object; react-native entries
// are applied after browser entries, so they take precedence on overlap.
func (pkg *Package) buildRedirects() {
	pkg.redirects = make(map[string]redirectTarget)

	applyObject := func(raw json.RawMessage) {
		if len(raw) == 0 {
			return
		}
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return
		}
		for key, value := range obj {
			k := pathutil.StripLeadingDotSlash(key)
			switch v := value.(type) {
			case bool:
				if !v {
					pkg.redirects[k] = redirectTarget{disabled: true}
				}
			case string:
				pkg.redirects[k] = redirectTarget{target: pathutil.StripLeadingDotSlash(v)}
			}
		}
	}

	applyObject(pkg.RawBrowser)
	applyObject(pkg.RawReactNative)
	pkg.redirectsBuilt = true
}

// RedirectRequire applies this package's browser/react-native redirect
// table to an absolute request path. matched is false when the key was
// not present in the table, in which case target equals reqAbsPath.
// disabled is true when the request should resolve to a NullModule.
func (pkg *Package) RedirectRequire(reqAbsPath string) (target string, disabled bool, matched bool) {
	if !pkg.redirectsBuilt {
		pkg.buildRedirects()
	}
	rel, err := filepath.Rel(pkg.Root, reqAbsPath)
	if err != nil {
		return reqAbsPath, false, false
	}
	rel = filepath.ToSlash(rel)

	rt, ok := pkg.redirects[rel]
	if !ok {
		return reqAbsPath, false, false
	}
	if rt.disabled {
		return "", true, true
	}
	return filepath.Join(pkg.Root, filepath.FromSlash(rt.target)), false, true
}

// --- modern "exports" field resolution (supplemental to require()) ---

// ResolveExport resolves a subpath export ("." or "./x") using
// DefaultConditions, falling back to "main" when "exports" is absent.
func (pkg *Package) ResolveExport(subpath string) (string, error) {
	return pkg.ResolveExportWithConditions(subpath, DefaultConditions)
}

// ResolveExportWithConditions is ResolveExport with a caller-supplied
// condition priority order.
func (pkg *Package) ResolveExportWithConditions(subpath string, conditions []string) (string, error) {
	if pkg.Exports == nil {
		if pkg.Main != "" {
			if subpath == "." {
				return pathutil.StripLeadingDotSlash(pkg.Main), nil
			}
			return "", ErrNotExported
		}
		return "", ErrNotExported
	}

	if exportStr, ok := pkg.Exports.(string); ok {
		if subpath == "." {
			return pathutil.StripLeadingDotSlash(exportStr), nil
		}
		return "", ErrNotExported
	}

	exportsMap, ok := pkg.Exports.(map[string]any)
	if !ok {
		return "", ErrNotExported
	}

	if !hasSubpathKeys(exportsMap) {
		if subpath == "." {
			return resolveConditions(exportsMap, conditions)
		}
		return "", ErrNotExported
	}

	exportValue, ok := exportsMap[subpath]
	if !ok {
		return "", ErrNotExported
	}
	return resolveExportValue(exportValue, conditions)
}

// ExportEntries returns all non-wildcard export entries from the package,
// resolved using DefaultConditions.
func (pkg *Package) ExportEntries() []ExportEntry {
	var entries []ExportEntry

	if pkg.Exports == nil {
		if pkg.Main != "" {
			entries = append(entries, ExportEntry{Subpath: ".", Target: pathutil.StripLeadingDotSlash(pkg.Main)})
		}
		return entries
	}

	if exportStr, ok := pkg.Exports.(string); ok {
		entries = append(entries, ExportEntry{Subpath: ".", Target: pathutil.StripLeadingDotSlash(exportStr)})
		return entries
	}

	exportsMap, ok := pkg.Exports.(map[string]any)
	if !ok {
		return entries
	}

	if !hasSubpathKeys(exportsMap) {
		if resolved, err := resolveConditions(exportsMap, DefaultConditions); err == nil {
			entries = append(entries, ExportEntry{Subpath: ".", Target: resolved})
		}
		return entries
	}

	for subpath, exportValue := range exportsMap {
		if strings.Contains(subpath, "*") {
			continue
		}
		resolved, err := resolveExportValue(exportValue, DefaultConditions)
		if err != nil {
			continue
		}
		entries = append(entries, ExportEntry{Subpath: subpath, Target: resolved})
	}

	return entries
}

// WildcardExports returns all wildcard export patterns from the package.
func (pkg *Package) WildcardExports() []WildcardExport {
	var wildcards []WildcardExport

	exportsMap, ok := pkg.Exports.(map[string]any)
	if !ok {
		return wildcards
	}

	for pattern, targetValue := range exportsMap {
		if !strings.Contains(pattern, "*") {
			continue
		}

		targetStr := resolveWildcardTarget(targetValue, DefaultConditions)
		if targetStr == "" || !strings.Contains(targetStr, "*") {
			continue
		}

		target := pathutil.StripLeadingDotSlash(targetStr)
		wildcardIdx := strings.Index(target, "*")

		wildcards = append(wildcards, WildcardExport{
			Pattern: pattern,
			Target:  target[:wildcardIdx],
		})
	}

	return wildcards
}

// HasTrailingSlashExport reports whether the package should accept a
// trailing-slash subpath import: true when it has wildcard exports, or
// when it has no "exports" field at all (legacy main-only packages).
func (pkg *Package) HasTrailingSlashExport() bool {
	if len(pkg.WildcardExports()) > 0 {
		return true
	}
	return pkg.Exports == nil
}

func hasSubpathKeys(exportsMap map[string]any) bool {
	for key := range exportsMap {
		if strings.HasPrefix(key, ".") {
			return true
		}
	}
	return false
}

func resolveExportValue(value any, conditions []string) (string, error) {
	switch v := value.(type) {
	case string:
		return pathutil.StripLeadingDotSlash(v), nil
	case map[string]any:
		return resolveConditions(v, conditions)
	}
	return "", ErrNotExported
}

func resolveConditions(conditions map[string]any, order []string) (string, error) {
	for _, cond := range order {
		value, ok := conditions[cond]
		if !ok {
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			if result, err := resolveConditions(nested, order); err == nil {
				return result, nil
			}
			continue
		}
		if s, ok := value.(string); ok {
			return pathutil.StripLeadingDotSlash(s), nil
		}
	}
	return "", ErrNotExported
}

func resolveWildcardTarget(value any, conditions []string) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]any:
		if result, err := resolveConditions(v, conditions); err == nil {
			return result
		}
	case []any:
		for _, item := range v {
			if result := resolveWildcardTarget(item, conditions); result != "" {
				return result
			}
		}
	}
	return ""
}
