/*
 * vrift: virtual filesystem acceleration layer
 * Copyright © 2026 Mario Finelli
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package cmd

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mfinelli/vrift/internal/cas"
	"github.com/mfinelli/vrift/internal/gc"
	"github.com/mfinelli/vrift/internal/registry"
)

var (
	gcDryRun      bool
	gcPruneStale  bool
	gcConcurrency int
)

// gcCmd represents the gc command
var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "reclaim CAS blobs no longer referenced by any registered manifest",
	Long: `GC marks every digest reachable from every manifest registered across
every project, then sweeps the CAS store deleting any blob not marked. Use
--dry-run to see what would be reclaimed without deleting anything, and
--prune-stale to also drop registry entries whose manifest file no longer
exists.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := cas.Open(viper.GetString("cas_root"))
		if err != nil {
			return fmt.Errorf("error opening cas store: %w", err)
		}
		defer store.Close()

		reg, err := registry.Open()
		if err != nil {
			return fmt.Errorf("error opening registry: %w", err)
		}

		lockPath, err := xdg.StateFile("vrift/gc.lock")
		if err != nil {
			return fmt.Errorf("error resolving gc lock path: %w", err)
		}

		collector := gc.New(store, reg, filepath.Clean(lockPath))
		report, err := collector.Run(ctx, gc.GCOptions{
			DryRun:         gcDryRun,
			PruneStale:     gcPruneStale,
			MaxConcurrency: gcConcurrency,
		})
		printGCReport(report)
		return err
	},
}

func printGCReport(r gc.Report) {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	subtleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("3"))

	fmt.Println(headerStyle.Render("GC Report"))
	fmt.Println(subtleStyle.Render(fmt.Sprintf("  reachable blobs:  %d", r.Reachable)))
	fmt.Println(subtleStyle.Render(fmt.Sprintf("  orphan blobs:     %d", r.Orphans)))
	fmt.Println(subtleStyle.Render(fmt.Sprintf("  bytes reclaimed:  %d", r.BytesReclaimed)))
	if r.DryRun {
		fmt.Println(warnStyle.Render("  (dry run: nothing was deleted)"))
	}
}

func init() {
	rootCmd.AddCommand(gcCmd)

	gcCmd.Flags().BoolVar(&gcDryRun, "dry-run", false, "report orphans without deleting them")
	gcCmd.Flags().BoolVar(&gcPruneStale, "prune-stale", false, "also drop registry entries whose manifest no longer exists")
	gcCmd.Flags().IntVar(&gcConcurrency, "concurrency", 0, "max parallel manifest scans during mark phase (default: 4)")
}
