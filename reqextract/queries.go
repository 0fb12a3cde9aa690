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

package reqextract

import (
	"embed"
	"fmt"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"
	tsTypescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

//go:embed queries/*/*.scm
var queryFiles embed.FS

var language = ts.NewLanguage(tsTypescript.LanguageTypescript())

var parserPool = sync.Pool{
	New: func() any {
		parser := ts.NewParser()
		if err := parser.SetLanguage(language); err != nil {
			panic("reqextract: failed to set TypeScript language: " + err.Error())
		}
		return parser
	},
}

func getParser() *ts.Parser {
	return parserPool.Get().(*ts.Parser)
}

func putParser(p *ts.Parser) {
	p.Reset()
	parserPool.Put(p)
}

var (
	requiresQuery     *ts.Query
	requiresQueryOnce sync.Once
	requiresQueryErr  error
)

func getRequiresQuery() (*ts.Query, error) {
	requiresQueryOnce.Do(func() {
		data, err := queryFiles.ReadFile("queries/typescript/requires.scm")
		if err != nil {
			requiresQueryErr = fmt.Errorf("reqextract: reading embedded query: %w", err)
			return
		}
		query, queryErr := ts.NewQuery(language, string(data))
		if queryErr != nil {
			requiresQueryErr = fmt.Errorf("reqextract: compiling query: %w", queryErr)
			return
		}
		requiresQuery = query
	})
	return requiresQuery, requiresQueryErr
}
