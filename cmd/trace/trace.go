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

// Package trace provides the trace command for depgraph.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mappa.dev/depgraph/depgraph"
	"mappa.dev/depgraph/fs"
	"mappa.dev/depgraph/internal/transform"
)

// moduleTrace is one line of the NDJSON dump `depgraph trace` emits: a
// single resolved module and its own resolved specifier -> path edges.
type moduleTrace struct {
	Path  string            `json:"path"`
	Edges map[string]string `json:"edges,omitempty"`
}

// Cmd is the trace cobra command that dumps the fully-resolved dependency
// graph as NDJSON, one module and its resolved edges per line, for
// debugging a resolution.
var Cmd = &cobra.Command{
	Use:   "trace [entry file]",
	Short: "Dump the resolved dependency graph for debugging",
	Long: `Resolve an entry file's full dependency graph and print it as NDJSON,
one line per module, each with its own resolved specifier -> path edges.`,
	Example: `  depgraph trace src/index.js
  depgraph trace src/index.js --platform android`,
	Args: cobra.ExactArgs(1),
	RunE: run,
}

func init() {
	Cmd.Flags().String("platform", "", "Target platform (e.g. ios, android)")
	Cmd.Flags().StringSlice("extensions", []string{"js", "jsx", "ts", "tsx", "mjs", "cjs"}, "Project source file extensions")
	Cmd.Flags().StringSlice("asset-extensions", []string{"png", "jpg", "jpeg", "gif", "svg"}, "Asset file extensions")
	Cmd.Flags().StringSlice("platforms", []string{"ios", "android"}, "Platforms available for platform-suffixed file fallback")
	Cmd.Flags().String("cache-dir", ".depgraph-cache", "Directory for the persistent transform/docblock cache (empty disables it)")

	_ = viper.BindPFlag("platform", Cmd.Flags().Lookup("platform"))
	_ = viper.BindPFlag("extensions", Cmd.Flags().Lookup("extensions"))
	_ = viper.BindPFlag("asset-extensions", Cmd.Flags().Lookup("asset-extensions"))
	_ = viper.BindPFlag("platforms", Cmd.Flags().Lookup("platforms"))
	_ = viper.BindPFlag("cache-dir", Cmd.Flags().Lookup("cache-dir"))
}

// metaCachePath resolves the --cache-dir flag relative to root, or
// disables the cache entirely when the flag was cleared.
func metaCachePath(root string) string {
	dir := viper.GetString("cache-dir")
	if dir == "" {
		return ""
	}
	return filepath.Join(root, dir)
}

func run(cmd *cobra.Command, args []string) error {
	osfs := fs.NewOSFileSystem()
	absRoot, err := filepath.Abs(viper.GetString("package"))
	if err != nil {
		return fmt.Errorf("invalid package directory: %w", err)
	}

	entryFile, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid entry file: %w", err)
	}

	dg, err := depgraph.New(osfs, depgraph.Options{
		ProjectRoots:    []string{absRoot},
		ProjectExts:     viper.GetStringSlice("extensions"),
		AssetExts:       viper.GetStringSlice("asset-extensions"),
		Platforms:       viper.GetStringSlice("platforms"),
		TransformCode:   transform.Passthrough,
		ExtractRequires: transform.ExtractRequires,
		MetaCachePath:   metaCachePath(absRoot),
	})
	if err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}
	defer dg.Flush()

	platform := viper.GetString("platform")
	resp, err := dg.GetDependencies(depgraph.GetDependenciesRequest{
		EntryFile: entryFile,
		Platform:  platform,
		Recursive: true,
	})
	if err != nil {
		return fmt.Errorf("failed to resolve: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	for _, m := range resp.Dependencies() {
		if err := encoder.Encode(moduleTrace{
			Path:  m.Path(),
			Edges: dg.ResolvedEdges(platform, m),
		}); err != nil {
			return fmt.Errorf("encoding trace line for %s: %w", m.Path(), err)
		}
	}
	return nil
}
