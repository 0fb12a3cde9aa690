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

package output_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"mappa.dev/depgraph/assetmap"
	"mappa.dev/depgraph/fastfs"
	"mappa.dev/depgraph/internal/mapfs"
	"mappa.dev/depgraph/internal/output"
	"mappa.dev/depgraph/hastemap"
	"mappa.dev/depgraph/module"
	"mappa.dev/depgraph/resolutioncache"
	"mappa.dev/depgraph/resolver"
	"mappa.dev/depgraph/response"
)

func passthroughTransform(m *module.Module, source []byte, opts module.TransformOptions) (module.TransformResult, error) {
	return module.TransformResult{Code: string(source)}, nil
}

func requireExtractor(code []byte) ([]string, error) {
	src := string(code)
	var specs []string
	for _, marker := range []string{`require("./b")`} {
		if strings.Contains(src, marker) {
			specs = append(specs, "./b")
		}
	}
	return specs, nil
}

func buildResponse(t *testing.T) *response.Response {
	t.Helper()
	mfs := mapfs.New()
	mfs.AddFile("/r/a.js", `require("./b")`, 0644)
	mfs.AddFile("/r/b.js", ``, 0644)

	ffs, err := fastfs.New(mfs, fastfs.Options{Roots: []string{"/r"}})
	if err != nil {
		t.Fatalf("fastfs.New failed: %v", err)
	}
	modules := module.NewCache(ffs, passthroughTransform, requireExtractor)
	assets := assetmap.New(ffs, []string{"png"})
	haste := hastemap.New(false)
	r := resolver.New(ffs, assets, haste, modules, resolver.Options{
		Platform:    "ios",
		ProjectExts: []string{"js"},
	})
	cache := resolutioncache.New(r)

	resp := response.New(cache)
	entry := modules.GetModule("/r/a.js")
	entryRes := cache.Pin(entry)
	<-entryRes.ReloadRequires(module.TransformOptions{}, true, false, nil, nil)
	if err := resp.AllResolved(module.TransformOptions{}, nil, nil, nil); err != nil {
		t.Fatalf("AllResolved failed: %v", err)
	}
	return resp
}

func TestResponseFormatsJSON(t *testing.T) {
	viper.Reset()
	mfs := mapfs.New()
	resp := buildResponse(t)

	if err := output.Response(mfs, resp, "json"); err != nil {
		t.Fatalf("Response failed: %v", err)
	}
}

func TestResponseFormatsHTML(t *testing.T) {
	viper.Reset()
	mfs := mapfs.New()
	resp := buildResponse(t)

	if err := output.Response(mfs, resp, "html"); err != nil {
		t.Fatalf("Response failed: %v", err)
	}
}

func TestResponseWritesToOutputFile(t *testing.T) {
	viper.Reset()
	viper.Set("output", "/out/graph.json")
	defer viper.Reset()

	mfs := mapfs.New()
	resp := buildResponse(t)

	if err := output.Response(mfs, resp, "json"); err != nil {
		t.Fatalf("Response failed: %v", err)
	}

	data, err := mfs.ReadFile("/out/graph.json")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	var doc struct {
		MainModuleID string   `json:"mainModuleId"`
		Dependencies []string `json:"dependencies"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output file is not valid JSON: %v", err)
	}
	if len(doc.Dependencies) != 2 {
		t.Errorf("got %d dependencies, want 2", len(doc.Dependencies))
	}
}
