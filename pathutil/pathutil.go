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

// Package pathutil provides the small set of pure path helpers the resolver
// core needs, plus doublestar glob helpers (MatchAny, Glob) that no other
// package calls; roots and blacklists are not matched through them.
package pathutil

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Sep is the host path separator, exposed so callers never hardcode "/".
const Sep = string(filepath.Separator)

// Join joins path elements using the host separator.
func Join(elem ...string) string {
	return filepath.Join(elem...)
}

// Resolve makes p absolute against base when it is not already absolute.
func Resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(base, p))
}

// Relative returns p expressed relative to base, using forward slashes.
func Relative(base, p string) (string, error) {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Dirname returns the parent directory of p.
func Dirname(p string) string {
	return filepath.Dir(p)
}

// Basename returns the final element of p.
func Basename(p string) string {
	return filepath.Base(p)
}

// Extname returns the extension of p, including the leading dot.
func Extname(p string) string {
	return filepath.Ext(p)
}

// IsAbsolute reports whether p is an absolute path.
func IsAbsolute(p string) bool {
	return filepath.IsAbs(p)
}

// IsRelativeSpecifier reports whether a require() specifier is a relative
// or absolute path reference rather than a bare package/haste name.
func IsRelativeSpecifier(specifier string) bool {
	return strings.HasPrefix(specifier, "./") ||
		strings.HasPrefix(specifier, "../") ||
		strings.HasPrefix(specifier, "/") ||
		specifier == "." || specifier == ".."
}

// StripLeadingDotSlash removes a leading "./" from p, leaving other paths
// untouched. Used when normalizing package.json "main"/export targets.
func StripLeadingDotSlash(p string) string {
	return strings.TrimPrefix(p, "./")
}

// StripKnownSourceExt strips a trailing ".js" or ".json" suffix, matching
// the normalization Package.getMain applies before re-appending the
// resolved extension.
func StripKnownSourceExt(p string) string {
	for _, ext := range []string{".js", ".json"} {
		if strings.HasSuffix(p, ext) {
			return strings.TrimSuffix(p, ext)
		}
	}
	return p
}

// Under reports whether p is equal to or a descendant of root.
func Under(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..")
}

// MatchAny reports whether name matches any of the given doublestar glob
// patterns. No other package in this module calls it.
func MatchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// Glob expands a doublestar glob pattern rooted at root, returning absolute
// paths. No other package in this module calls it.
func Glob(root, pattern string) ([]string, error) {
	full := filepath.ToSlash(filepath.Join(root, pattern))
	matches, err := doublestar.FilepathGlob(full)
	if err != nil {
		return nil, err
	}
	return matches, nil
}
