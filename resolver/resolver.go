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

// Package resolver implements the per-module specifier resolution
// algorithm: a fixed strategy order (redirect, asset,
// haste, project-path, installed-package, polyfill/null), each attempted
// only after the previous raises UnableToResolve.
package resolver

import (
	"fmt"
	"path/filepath"
	"strings"

	"mappa.dev/depgraph/assetmap"
	"mappa.dev/depgraph/fastfs"
	"mappa.dev/depgraph/hastemap"
	"mappa.dev/depgraph/module"
	"mappa.dev/depgraph/pathutil"
)

// UnableToResolve is raised when every strategy has been exhausted.
type UnableToResolve struct {
	From      string
	Specifier string
	Message   string
}

func (e *UnableToResolve) Error() string {
	return fmt.Sprintf("resolver: cannot resolve %q from %q: %s", e.Specifier, e.From, e.Message)
}

// RedirectValue is one entry of the global redirect table:
// map<path, path|false>.
type RedirectValue struct {
	Disabled bool
	Target   string
}

// RedirectTable is the global redirect table applied after package-level
// redirection.
type RedirectTable map[string]RedirectValue

// Options configures a Resolver.
type Options struct {
	Platform             string
	Platforms            []string
	PreferNativePlatform bool
	// ProjectExts lists source extensions in fallback order, e.g. ["js", "json"].
	ProjectExts []string
	// ProjectRoots anchors absolute (non-relative) project-path lookups.
	ProjectRoots []string
	// ExtraNodeModules provides a fallback base directory for a bare
	// specifier's first path component.
	ExtraNodeModules map[string]string
	// Redirect is the global redirect table, applied after any
	// package-level browser/react-native redirect.
	Redirect RedirectTable
	// BuiltinModules names runtime built-ins that resolve to a NullModule
	// absent a polyfill override (step 6).
	BuiltinModules map[string]bool
	// Polyfills overrides a builtin name with a concrete Module, e.g. a
	// synthetic module created via createPolyfill.
	Polyfills map[string]*module.Module
}

// Resolver resolves require() specifiers to Modules for one DependencyGraph
// instance. It is stateless across calls beyond its shared indices, so a
// single Resolver is reused for every module in the graph.
type Resolver struct {
	ffs     *fastfs.Fastfs
	assets  *assetmap.AssetMap
	haste   *hastemap.HasteMap
	modules *module.Cache

	platform             string
	platforms            []string
	preferNativePlatform bool
	projectExts          []string
	projectRoots         []string
	extraNodeModules     map[string]string
	redirect             RedirectTable
	builtinModules       map[string]bool
	polyfills            map[string]*module.Module
}

// New constructs a Resolver bound to the given shared indices.
func New(ffs *fastfs.Fastfs, assets *assetmap.AssetMap, haste *hastemap.HasteMap, modules *module.Cache, opts Options) *Resolver {
	return &Resolver{
		ffs:                  ffs,
		assets:               assets,
		haste:                haste,
		modules:              modules,
		platform:             opts.Platform,
		platforms:            opts.Platforms,
		preferNativePlatform: opts.PreferNativePlatform,
		projectExts:          opts.ProjectExts,
		projectRoots:         opts.ProjectRoots,
		extraNodeModules:     opts.ExtraNodeModules,
		redirect:             opts.Redirect,
		builtinModules:       opts.BuiltinModules,
		polyfills:            opts.Polyfills,
	}
}

// Resolve implements resolve(specifier) for a require made
// from fromModule (nil for a request entry point with no owning module).
func (r *Resolver) Resolve(fromModule *module.Module, specifier string) (*module.Module, error) {
	fromPath := ""
	if fromModule != nil {
		fromPath = fromModule.Path()
	}

	specifier, shortCircuit, err := r.applyRedirects(fromModule, specifier)
	if err != nil {
		return nil, err
	}
	if shortCircuit != nil {
		return shortCircuit, nil
	}

	if m, ok := r.assets.Resolve(specifier, r.platform); ok {
		return r.modules.GetAssetModule(m), nil
	}

	if !pathutil.IsRelativeSpecifier(specifier) {
		if m, ok, err := r.resolveHaste(specifier); err != nil {
			return nil, err
		} else if ok {
			return m, nil
		}
	}

	if m, ok, err := r.resolveProjectPath(fromPath, specifier); err != nil {
		return nil, err
	} else if ok {
		return m, nil
	}

	if !pathutil.IsRelativeSpecifier(specifier) {
		if m, ok, err := r.resolveInstalledPackage(fromPath, specifier); err != nil {
			return nil, err
		} else if ok {
			return m, nil
		}
	}

	if r.builtinModules[specifier] {
		if poly, ok := r.polyfills[specifier]; ok {
			return poly, nil
		}
		return r.modules.GetNullModule(specifier), nil
	}

	return nil, &UnableToResolve{From: fromPath, Specifier: specifier, Message: "no strategy matched"}
}

// applyRedirects implements the package-level redirect followed
// by the global redirect table. shortCircuit is non-nil when a redirect
// disabled the request (resolving to a NullModule); otherwise specifier is
// returned, possibly rewritten to an absolute redirect target.
func (r *Resolver) applyRedirects(fromModule *module.Module, specifier string) (string, *module.Module, error) {
	if fromModule != nil {
		pkg, err := r.modules.GetPackageForModule(fromModule)
		if err != nil {
			return specifier, nil, err
		}
		if pkg != nil {
			reqAbsPath := specifier
			switch {
			case pathutil.IsRelativeSpecifier(specifier):
				reqAbsPath = pathutil.Resolve(filepath.Dir(fromModule.Path()), specifier)
			default:
				reqAbsPath = filepath.Join(pkg.Root, specifier)
			}
			target, disabled, matched := pkg.RedirectRequire(reqAbsPath)
			if matched {
				if disabled {
					return specifier, r.modules.GetNullModule(specifier), nil
				}
				specifier = target
			}
		}
	}

	if rv, ok := r.redirect[specifier]; ok {
		if rv.Disabled {
			return specifier, r.modules.GetNullModule(specifier), nil
		}
		specifier = rv.Target
	}

	return specifier, nil, nil
}

// resolveHaste implements step 3: a bare specifier first tries the haste
// name index. A hit on a package entry treats any remainder after the
// package name as a path within the package root and falls into
// file-or-dir loading.
func (r *Resolver) resolveHaste(specifier string) (*module.Module, bool, error) {
	name, remainder := splitHasteName(specifier)
	entry, ok := r.haste.GetModule(name, r.platform)
	if !ok {
		return nil, false, nil
	}

	if entry.Kind == hastemap.EntryModule {
		if remainder != "" {
			return nil, false, nil
		}
		return r.modules.GetModule(entry.Path), true, nil
	}

	// EntryPackage: entry.Path is the package.json path; its directory is
	// the package root that `remainder` is resolved within.
	root := filepath.Dir(entry.Path)
	target := root
	if remainder != "" {
		target = filepath.Join(root, remainder)
	}
	if m, ok, err := r.loadAsFile(target); err != nil || ok {
		return m, ok, err
	}
	return r.loadAsDir(target)
}

// splitHasteName separates a haste specifier into its package/module name
// and an optional "/subpath" remainder.
func splitHasteName(specifier string) (string, string) {
	if idx := strings.Index(specifier, "/"); idx >= 0 {
		return specifier[:idx], specifier[idx+1:]
	}
	return specifier, ""
}

// resolveProjectPath implements step 4.
func (r *Resolver) resolveProjectPath(fromPath, specifier string) (*module.Module, bool, error) {
	var target string
	switch {
	case pathutil.IsRelativeSpecifier(specifier) && !filepath.IsAbs(specifier):
		target = pathutil.Resolve(filepath.Dir(fromPath), specifier)
	case filepath.IsAbs(specifier):
		target = specifier
	default:
		// Bare specifiers fall through to installed-package lookup, not
		// project-path lookup.
		return nil, false, nil
	}

	if r.ffs.DirExists(target) {
		return r.loadAsDir(target)
	}
	return r.loadAsFile(target)
}

// resolveInstalledPackage implements step 5: walk from the requester's
// directory upward trying <dir>/node_modules/<specifier>, skipping any
// directory whose own name ends in "node_modules".
func (r *Resolver) resolveInstalledPackage(fromPath, specifier string) (*module.Module, bool, error) {
	name, remainder := splitBareSpecifier(specifier)

	dir := filepath.Dir(fromPath)
	for {
		if !strings.HasSuffix(filepath.Base(dir), "node_modules") {
			candidate := filepath.Join(dir, "node_modules", name)
			target := candidate
			if remainder != "" {
				target = filepath.Join(candidate, remainder)
			}
			if m, ok, err := r.loadFileOrDir(target); err != nil || ok {
				return m, ok, err
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if base, ok := r.extraNodeModules[name]; ok {
		target := base
		if remainder != "" {
			target = filepath.Join(base, remainder)
		}
		if m, ok, err := r.loadFileOrDir(target); err != nil || ok {
			return m, ok, err
		}
	}

	return nil, false, nil
}

func splitBareSpecifier(specifier string) (string, string) {
	// Scoped packages ("@scope/name") consume two path segments as the name.
	if strings.HasPrefix(specifier, "@") {
		parts := strings.SplitN(specifier, "/", 3)
		if len(parts) >= 2 {
			name := parts[0] + "/" + parts[1]
			if len(parts) == 3 {
				return name, parts[2]
			}
			return name, ""
		}
	}
	if idx := strings.Index(specifier, "/"); idx >= 0 {
		return specifier[:idx], specifier[idx+1:]
	}
	return specifier, ""
}

func (r *Resolver) loadFileOrDir(target string) (*module.Module, bool, error) {
	if r.ffs.DirExists(target) {
		return r.loadAsDir(target)
	}
	return r.loadAsFile(target)
}

// loadAsFile tries target as-is via the extension/platform fallback,
// returning the resulting Module if a match exists in Fastfs.
func (r *Resolver) loadAsFile(target string) (*module.Module, bool, error) {
	if hasKnownSourceExt(target, r.projectExts) {
		if r.ffs.FileExists(target) {
			return r.modules.GetModule(target), true, nil
		}
		return nil, false, nil
	}
	for _, candidate := range r.fallbackCandidates(target) {
		if r.ffs.FileExists(candidate) {
			return r.modules.GetModule(candidate), true, nil
		}
	}
	return nil, false, nil
}

// hasKnownSourceExt reports whether target already carries one of the
// configured project extensions: "if the specifier
// carries an extension, use it as-is."
func hasKnownSourceExt(target string, projectExts []string) bool {
	ext := strings.TrimPrefix(filepath.Ext(target), ".")
	for _, e := range projectExts {
		if ext == strings.TrimPrefix(e, ".") {
			return true
		}
	}
	return false
}

// loadAsDir requires the directory to exist; reads package.json's main (or
// falls back to "index" with no package.json), then loads as a file.
func (r *Resolver) loadAsDir(dir string) (*module.Module, bool, error) {
	if !r.ffs.DirExists(dir) {
		return nil, false, nil
	}
	pkgPath := filepath.Join(dir, "package.json")
	if r.ffs.FileExists(pkgPath) {
		pkg, err := r.modules.GetPackage(pkgPath)
		if err != nil {
			return nil, false, err
		}
		return r.loadAsFile(pkg.GetMain())
	}
	return r.loadAsFile(filepath.Join(dir, "index"))
}

// fallbackCandidates implements the extension/platform
// fallback: {base}.{platform}.{ext}, then (if preferNativePlatform)
// {base}.native.{ext}, then {base}.{ext}, for each ext in projectExts.
func (r *Resolver) fallbackCandidates(base string) []string {
	var out []string
	for _, ext := range r.projectExts {
		if r.platform != "" {
			out = append(out, fmt.Sprintf("%s.%s.%s", base, r.platform, ext))
		}
		if r.preferNativePlatform {
			out = append(out, fmt.Sprintf("%s.native.%s", base, ext))
		}
		out = append(out, fmt.Sprintf("%s.%s", base, ext))
	}
	return out
}
