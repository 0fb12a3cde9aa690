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

package reqextract_test

import (
	"testing"

	"mappa.dev/depgraph/reqextract"
)

func TestExtractRequireCalls(t *testing.T) {
	src := `
const a = require("./a");
const b = require("b-package");
`
	specs, err := reqextract.Extract([]byte(src))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs, want 2: %+v", len(specs), specs)
	}
	if specs[0].Text != "./a" || specs[1].Text != "b-package" {
		t.Errorf("got %+v, want source order ./a then b-package", specs)
	}
	for _, s := range specs {
		if s.IsDynamic {
			t.Errorf("require() calls should not be marked dynamic: %+v", s)
		}
	}
}

func TestExtractDynamicImport(t *testing.T) {
	src := `async function load() { const mod = await import("./lazy"); }`
	specs, err := reqextract.Extract([]byte(src))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("got %d specs, want 1: %+v", len(specs), specs)
	}
	if specs[0].Text != "./lazy" || !specs[0].IsDynamic {
		t.Errorf("got %+v, want dynamic ./lazy", specs[0])
	}
}

func TestExtractESMImport(t *testing.T) {
	src := `import foo from "./foo";
export { bar } from "./bar";`
	specs, err := reqextract.Extract([]byte(src))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs, want 2: %+v", len(specs), specs)
	}
	texts := []string{specs[0].Text, specs[1].Text}
	if texts[0] != "./foo" || texts[1] != "./bar" {
		t.Errorf("got %v, want [./foo ./bar] in source order", texts)
	}
}

func TestExtractRequiresContract(t *testing.T) {
	src := `require("./a"); require("./b");`
	deps, err := reqextract.ExtractRequires([]byte(src))
	if err != nil {
		t.Fatalf("ExtractRequires failed: %v", err)
	}
	if len(deps.Sync) != 2 || deps.Sync[0] != "./a" || deps.Sync[1] != "./b" {
		t.Errorf("got %+v", deps)
	}
}

func TestExtractNoRequires(t *testing.T) {
	specs, err := reqextract.Extract([]byte(`const x = 1;`))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(specs) != 0 {
		t.Errorf("got %+v, want none", specs)
	}
}
