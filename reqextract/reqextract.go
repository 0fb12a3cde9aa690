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

// Package reqextract implements the extractRequires external contract:
// parsing a module's transformed source into the ordered list of
// require()/import specifier strings it references. Backed by
// tree-sitter so a single parser handles both CommonJS require() calls and
// ESM import/export-from specifiers, which haste-era sources mix freely.
package reqextract

import (
	"fmt"
	"sort"

	ts "github.com/tree-sitter/go-tree-sitter"
)

// Specifier is one extracted dependency reference, in source order.
type Specifier struct {
	Text      string
	Line      int // 1-indexed
	IsDynamic bool
}

// Dependencies is the external extractRequires contract's return shape:
// "{deps: {sync: string[]}}".
type Dependencies struct {
	Sync []string
}

// Extract parses content and returns every require()/import/dynamic-import/
// export-from specifier, in source order (by source position, §3's
// "requires — ordered list ... source order").
func Extract(content []byte) ([]Specifier, error) {
	query, err := getRequiresQuery()
	if err != nil {
		return nil, err
	}

	parser := getParser()
	defer putParser(parser)

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("reqextract: failed to parse content")
	}
	defer tree.Close()

	cursor := ts.NewQueryCursor()
	defer cursor.Close()

	captureNames := query.CaptureNames()
	matches := cursor.Matches(query, tree.RootNode(), content)

	var specs []Specifier
	for {
		match := matches.Next()
		if match == nil {
			break
		}
		for _, capture := range match.Captures {
			name := captureNames[capture.Index]
			if name == "_fn" {
				continue
			}
			text := capture.Node.Utf8Text(content)
			line := int(capture.Node.StartPosition().Row) + 1

			specs = append(specs, Specifier{
				Text:      text,
				Line:      line,
				IsDynamic: name == "dynamicImport.spec",
			})
		}
	}

	sort.SliceStable(specs, func(i, j int) bool { return specs[i].Line < specs[j].Line })
	return specs, nil
}

// ExtractRequires adapts Extract to the extractRequires
// contract, returning only the specifier text in source order.
func ExtractRequires(content []byte) (Dependencies, error) {
	specs, err := Extract(content)
	if err != nil {
		return Dependencies{}, err
	}
	sync := make([]string, 0, len(specs))
	for _, s := range specs {
		sync = append(sync, s.Text)
	}
	return Dependencies{Sync: sync}, nil
}
