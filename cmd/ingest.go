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
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mfinelli/vrift/internal/cas"
	"github.com/mfinelli/vrift/internal/ingest"
	"github.com/mfinelli/vrift/internal/registry"
)

var ingestMode string

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "walk the project tree and commit its content into the CAS store",
	Long: `Ingest walks project_root, content-hashes every file, commits unique
content into the CAS store (hardlinking in solid mode, renaming in phantom
mode), and records the resulting path -> digest mapping into the project's
manifest.`,
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

		mode := ingest.ModeSolid
		if ingestMode == "phantom" {
			mode = ingest.ModePhantom
		}

		engine := ingest.New(store, reg)
		summary, err := engine.Ingest(ctx, ingest.IngestOptions{
			ProjectRoot:    viper.GetString("project_root"),
			ManifestPath:   viper.GetString("manifest_path"),
			Mode:           mode,
			IgnorePatterns: viper.GetStringSlice("ignore"),
		})
		printIngestSummary(summary)
		return err
	},
}

func printIngestSummary(s ingest.Summary) {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	subtleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	fmt.Println(headerStyle.Render("Ingest Summary"))
	fmt.Println(subtleStyle.Render(fmt.Sprintf("  files seen:      %d", s.FilesSeen)))
	fmt.Println(subtleStyle.Render(fmt.Sprintf("  files ingested:  %d", s.FilesIngested)))
	fmt.Println(subtleStyle.Render(fmt.Sprintf("  files deduped:   %d", s.FilesDeduped)))
	fmt.Println(subtleStyle.Render(fmt.Sprintf("  dirs seen:       %d", s.DirsSeen)))
	fmt.Println(subtleStyle.Render(fmt.Sprintf("  symlinks seen:   %d", s.SymlinksSeen)))
	fmt.Println(subtleStyle.Render(fmt.Sprintf("  bytes ingested:  %d", s.BytesIngested)))
	if s.PermissionSkip > 0 {
		fmt.Println(subtleStyle.Render(fmt.Sprintf("  permission skip: %d", s.PermissionSkip)))
	}
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestMode, "mode", "solid", "ingest mode: solid (hardlink) or phantom (rename)")
}
