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

// Package output provides shared output utilities for depgraph CLI commands.
package output

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/viper"

	"mappa.dev/depgraph/fs"
	"mappa.dev/depgraph/response"
)

// graphDocument is the JSON shape printed by `depgraph resolve`: every
// discovered dependency's resolved file path, in discovery order, plus the
// entry's own id.
type graphDocument struct {
	MainModuleID string   `json:"mainModuleId"`
	Dependencies []string `json:"dependencies"`
}

// Response formats resp and writes it to stdout or, if viper's "output"
// flag is set, to that file.
func Response(osfs fs.FileSystem, resp *response.Response, format string) error {
	doc := graphDocument{MainModuleID: resp.MainModuleID()}
	for _, m := range resp.Dependencies() {
		doc.Dependencies = append(doc.Dependencies, m.Path())
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling dependency graph: %w", err)
	}

	out := string(data)
	if format == "html" {
		out = fmt.Sprintf("<script type=\"importmap\">\n%s\n</script>", data)
	}

	if outputPath := viper.GetString("output"); outputPath != "" {
		return osfs.WriteFile(outputPath, []byte(out+"\n"), 0644)
	}
	fmt.Println(out)
	return nil
}
