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

// Package resolve provides the resolve command for depgraph.
package resolve

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mappa.dev/depgraph/depgraph"
	"mappa.dev/depgraph/fs"
	"mappa.dev/depgraph/internal/output"
	"mappa.dev/depgraph/internal/transform"
	"mappa.dev/depgraph/module"
)

// Cmd is the resolve cobra command that prints an entry file's resolved
// dependency graph.
var Cmd = &cobra.Command{
	Use:   "resolve [entry file]",
	Short: "Resolve an entry file's dependency graph",
	Long: `Resolve an entry file's dependency graph from its require() specifiers.

By default, resolves the full transitive graph. Use --shallow to print only
the entry's own immediate specifiers without resolving them.`,
	Example: `  # Resolve the full dependency graph from an entry file
  depgraph resolve src/index.js

  # Just the entry's own require() specifiers, unresolved
  depgraph resolve src/index.js --shallow

  # Resolve for a specific platform
  depgraph resolve src/index.js --platform ios

  # Output as an HTML importmap script tag
  depgraph resolve src/index.js --format html`,
	Args: cobra.ExactArgs(1),
	RunE: run,
}

func init() {
	Cmd.Flags().StringP("format", "f", "json", "Output format (json, html)")
	Cmd.Flags().String("platform", "", "Target platform (e.g. ios, android)")
	Cmd.Flags().Bool("shallow", false, "Print only the entry's own specifiers, unresolved")
	Cmd.Flags().StringSlice("extensions", []string{"js", "jsx", "ts", "tsx", "mjs", "cjs"}, "Project source file extensions")
	Cmd.Flags().StringSlice("asset-extensions", []string{"png", "jpg", "jpeg", "gif", "svg"}, "Asset file extensions")
	Cmd.Flags().StringSlice("platforms", []string{"ios", "android"}, "Platforms available for platform-suffixed file fallback")
	Cmd.Flags().Bool("prefer-native-platform", false, "Prefer a native platform's files over generic ones")
	Cmd.Flags().String("haste-snapshot", "", "Path to write the informational haste snapshot JSON")
	Cmd.Flags().String("cache-dir", ".depgraph-cache", "Directory for the persistent transform/docblock cache (empty disables it)")

	_ = viper.BindPFlag("format", Cmd.Flags().Lookup("format"))
	_ = viper.BindPFlag("platform", Cmd.Flags().Lookup("platform"))
	_ = viper.BindPFlag("shallow", Cmd.Flags().Lookup("shallow"))
	_ = viper.BindPFlag("extensions", Cmd.Flags().Lookup("extensions"))
	_ = viper.BindPFlag("asset-extensions", Cmd.Flags().Lookup("asset-extensions"))
	_ = viper.BindPFlag("platforms", Cmd.Flags().Lookup("platforms"))
	_ = viper.BindPFlag("prefer-native-platform", Cmd.Flags().Lookup("prefer-native-platform"))
	_ = viper.BindPFlag("haste-snapshot", Cmd.Flags().Lookup("haste-snapshot"))
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

	format := viper.GetString("format")
	if format != "json" && format != "html" {
		return fmt.Errorf("invalid format %q: must be 'json' or 'html'", format)
	}

	entryFile, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid entry file: %w", err)
	}

	dg, err := depgraph.New(osfs, depgraph.Options{
		ProjectRoots:         []string{absRoot},
		ProjectExts:          viper.GetStringSlice("extensions"),
		AssetExts:            viper.GetStringSlice("asset-extensions"),
		Platforms:            viper.GetStringSlice("platforms"),
		PreferNativePlatform: viper.GetBool("prefer-native-platform"),
		TransformCode:        transform.Passthrough,
		ExtractRequires:      transform.ExtractRequires,
		HasteSnapshotPath:    viper.GetString("haste-snapshot"),
		MetaCachePath:        metaCachePath(absRoot),
	})
	if err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}
	defer dg.Flush()

	if viper.GetBool("shallow") {
		specs, err := dg.GetShallowDependencies(entryFile, module.TransformOptions{})
		if err != nil {
			return fmt.Errorf("failed to resolve: %w", err)
		}
		for _, s := range specs {
			fmt.Println(s)
		}
		return nil
	}

	resp, err := dg.GetDependencies(depgraph.GetDependenciesRequest{
		EntryFile: entryFile,
		Platform:  viper.GetString("platform"),
		Recursive: true,
	})
	if err != nil {
		return fmt.Errorf("failed to resolve: %w", err)
	}

	return output.Response(osfs, resp, format)
}
