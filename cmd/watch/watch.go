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

// Package watch provides the watch command for depgraph.
package watch

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mappa.dev/depgraph/depgraph"
	"mappa.dev/depgraph/fs"
	"mappa.dev/depgraph/internal/logging"
	"mappa.dev/depgraph/internal/output"
	"mappa.dev/depgraph/internal/transform"
)

// Cmd is the watch cobra command that keeps an entry file's dependency
// graph resolved against live filesystem changes, reprinting it each time
// the graph settles.
var Cmd = &cobra.Command{
	Use:   "watch [entry file]",
	Short: "Watch an entry file's dependency graph for changes",
	Long: `Watch an entry file and its transitive dependencies, re-resolving and
reprinting the graph every time a watched file is added, changed, or
removed and the resolution settles.`,
	Example: `  depgraph watch src/index.js
  depgraph watch src/index.js --platform ios`,
	Args: cobra.ExactArgs(1),
	RunE: run,
}

func init() {
	Cmd.Flags().StringP("format", "f", "json", "Output format (json, html)")
	Cmd.Flags().String("platform", "", "Target platform (e.g. ios, android)")
	Cmd.Flags().StringSlice("extensions", []string{"js", "jsx", "ts", "tsx", "mjs", "cjs"}, "Project source file extensions")
	Cmd.Flags().StringSlice("asset-extensions", []string{"png", "jpg", "jpeg", "gif", "svg"}, "Asset file extensions")
	Cmd.Flags().StringSlice("platforms", []string{"ios", "android"}, "Platforms available for platform-suffixed file fallback")
	Cmd.Flags().String("cache-dir", ".depgraph-cache", "Directory for the persistent transform/docblock cache (empty disables it)")

	_ = viper.BindPFlag("format", Cmd.Flags().Lookup("format"))
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

	format := viper.GetString("format")
	if format != "json" && format != "html" {
		return fmt.Errorf("invalid format %q: must be 'json' or 'html'", format)
	}

	entryFile, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid entry file: %w", err)
	}

	logger, err := logging.NewDevelopment()
	if err != nil {
		return fmt.Errorf("failed to start logger: %w", err)
	}

	dg, err := depgraph.New(osfs, depgraph.Options{
		ProjectRoots: []string{absRoot},
		ProjectExts:  viper.GetStringSlice("extensions"),
		AssetExts:    viper.GetStringSlice("asset-extensions"),
		Platforms:    viper.GetStringSlice("platforms"),

		TransformCode:   transform.Passthrough,
		ExtractRequires: transform.ExtractRequires,
		Logger:          logger,
		MetaCachePath:   metaCachePath(absRoot),
	})
	if err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}
	defer dg.Flush()

	watcher, err := dg.Watch()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	go watcher.Run()

	platform := viper.GetString("platform")
	resolve := func() error {
		resp, err := dg.GetDependencies(depgraph.GetDependenciesRequest{
			EntryFile: entryFile,
			Platform:  platform,
			Recursive: true,
		})
		if err != nil {
			return err
		}
		return output.Response(osfs, resp, format)
	}

	if err := resolve(); err != nil {
		return fmt.Errorf("failed to resolve: %w", err)
	}
	fmt.Fprintln(os.Stderr, "watching for changes, press Ctrl+C to stop")

	// changed is signaled once per underlying filesystem change, after this
	// graph's own dirty-marking has already run for it (registration order
	// in Fastfs.OnChange is preserved). Buffered and non-blocking so a burst
	// of change events collapses into a single pending re-resolve.
	changed := make(chan struct{}, 1)
	dg.OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			return nil
		case err, ok := <-watcher.Errors():
			if !ok {
				return nil
			}
			logger.Warning("watcher error: %v", err)
		case <-changed:
			if err := resolve(); err != nil {
				logger.Warning("failed to resolve: %v", err)
			}
		}
	}
}
