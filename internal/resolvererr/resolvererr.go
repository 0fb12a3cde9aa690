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

// Package resolvererr collects the error taxonomy that
// doesn't already have an obvious single owning package. UnableToResolve
// lives in resolver, NotFoundInRoots in fastfs, HasteCollision in
// hastemap (each is recoverable only at its own strategy boundary, so it
// stays close to the code that recovers it); MalformedPackage has no such
// home, since parsing happens in pkgjson but recovery happens wherever a
// package.json read occurs incidentally (haste indexing, resolver steps).
package resolvererr

import "fmt"

// MalformedPackage wraps a package.json parse failure with the path that
// produced it, so callers can decide whether to swallow it (haste
// indexing) or propagate it (an explicit package.json read request).
type MalformedPackage struct {
	Path string
	Err  error
}

func (e *MalformedPackage) Error() string {
	return fmt.Sprintf("malformed package.json at %s: %v", e.Path, e.Err)
}

func (e *MalformedPackage) Unwrap() error { return e.Err }
