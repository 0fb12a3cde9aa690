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

// Package transform supplies the CLI commands' default transformCode and
// extractRequires wiring. transformCode itself is an external collaborator
// ("out of scope: the code-transform pipeline that rewrites
// source"); Passthrough is the identity transform the CLI uses when no real
// bundler-side transform is plugged in, leaving dependency discovery to
// ExtractRequires.
package transform

import (
	"mappa.dev/depgraph/module"
	"mappa.dev/depgraph/reqextract"
)

// Passthrough returns source unchanged, with no pre-computed dependency
// list, so module.Module.ReadDependencies falls back to ExtractRequires.
func Passthrough(m *module.Module, source []byte, opts module.TransformOptions) (module.TransformResult, error) {
	return module.TransformResult{Code: string(source)}, nil
}

// ExtractRequires adapts reqextract's {deps: {sync}} contract to the
// module.ExtractRequiresFunc shape.
func ExtractRequires(code []byte) ([]string, error) {
	deps, err := reqextract.ExtractRequires(code)
	if err != nil {
		return nil, err
	}
	return deps.Sync, nil
}
