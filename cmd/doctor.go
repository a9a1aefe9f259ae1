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
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mfinelli/vrift/internal/cas"
	"github.com/mfinelli/vrift/internal/digest"
	"github.com/mfinelli/vrift/internal/manifest"
	"github.com/mfinelli/vrift/internal/registry"
)

var deepCheck bool
var doctorRehash bool

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "run health checks on the vrift manifest, CAS store, and registry",
	Long: `Run a read-only health check to confirm vrift can operate safely.

Doctor verifies:
  - The project manifest opens and its every entry resolves to CAS content
    (presence only, recorded sizes are not compared; --recheck also
    re-hashes and compares digests)
  - The CAS store's sharded directory layout is intact
  - The manifest registry's entries point at manifests that still exist
    (--full also reports entries no project has touched recently)

Doctor does not modify any ingested content. It may read blob files to
validate integrity when --recheck is given.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		run := func() error {
			if err := checkCASLayout(); err != nil {
				return err
			}
			if err := checkManifest(ctx); err != nil {
				return err
			}
			if err := checkRegistry(); err != nil {
				return err
			}
			return nil
		}

		if err := run(); err != nil {
			if errors.Is(err, context.Canceled) {
				return fmt.Errorf("cancelled")
			}
			return err
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().BoolVar(&deepCheck, "full", false, "also reports stale registry entries")
	doctorCmd.Flags().BoolVar(&doctorRehash, "recheck", false, "re-hashes every manifest entry's blob to confirm its digest")
}

// checkCASLayout verifies the CAS root exists and has the expected
// two-level sharded directory structure.
func checkCASLayout() error {
	fmt.Println(headerStyle.Render("CAS Store Checks"))
	root := viper.GetString("cas_root")
	fmt.Println(subtleStyle.Render("  root: " + root))
	fmt.Println()

	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println(errStyle.Render("  ✗ cas root does not exist"))
			fmt.Println(subtleStyle.Render("    run `vrift init` to create it"))
			fmt.Println()
			return fmt.Errorf("cas root missing: %s", root)
		}
		fmt.Println(errStyle.Render("  ✗ could not stat cas root"))
		fmt.Println(subtleStyle.Render("    " + err.Error()))
		fmt.Println()
		return fmt.Errorf("cannot stat cas root: %w", err)
	}
	if !info.IsDir() {
		fmt.Println(errStyle.Render("  ✗ cas root is not a directory"))
		fmt.Println()
		return fmt.Errorf("cas root is not a directory: %s", root)
	}

	var missing int
	for i := 0; i < 256; i++ {
		shard := filepath.Join(root, fmt.Sprintf("%02x", i))
		if st, err := os.Stat(shard); err != nil || !st.IsDir() {
			missing++
		}
	}

	if missing == 0 {
		fmt.Println(okStyle.Render("  ✓ all 256 L1 shard directories present"))
	} else {
		fmt.Println(warnStyle.Render(fmt.Sprintf("  ⚠ %d/256 L1 shard directories missing (re-created whenever the store is opened)", missing)))
	}

	fmt.Println()
	return nil
}

// checkManifest opens the project manifest and confirms every entry's
// digest resolves to a blob present in the CAS (and, with --recheck, a
// matching content hash). The entry's recorded size is not compared
// against the blob.
func checkManifest(ctx context.Context) error {
	fmt.Println(headerStyle.Render("Manifest Checks"))
	manifestPath := viper.GetString("manifest_path")
	fmt.Println(subtleStyle.Render("  manifest: " + manifestPath))
	fmt.Println()

	if _, err := os.Stat(manifestPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println(warnStyle.Render("  ⚠ manifest does not exist yet"))
			fmt.Println(subtleStyle.Render("    run `vrift ingest` to create it"))
			fmt.Println()
			return nil
		}
		fmt.Println(errStyle.Render("  ✗ could not stat manifest"))
		fmt.Println()
		return fmt.Errorf("cannot stat manifest: %w", err)
	}

	mstore, err := manifest.OpenReadOnly(manifestPath)
	if err != nil {
		fmt.Println(errStyle.Render("  ✗ could not open manifest"))
		fmt.Println(subtleStyle.Render("    " + err.Error()))
		fmt.Println()
		return fmt.Errorf("cannot open manifest: %w", err)
	}
	defer mstore.Close()

	store, err := cas.Open(viper.GetString("cas_root"))
	if err != nil {
		fmt.Println(errStyle.Render("  ✗ could not open cas store"))
		fmt.Println()
		return fmt.Errorf("cannot open cas store: %w", err)
	}
	defer store.Close()

	var total, missing, mismatched, checked int

	scanErr := mstore.ScanPrefix("", func(path string, e manifest.Entry) error {
		if e.Kind == manifest.KindDir {
			return nil
		}
		total++

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !store.Has(e.Digest) {
			missing++
			return nil
		}

		if !doctorRehash {
			return nil
		}

		f, err := store.OpenBlob(e.Digest)
		if err != nil {
			missing++
			return nil
		}
		defer f.Close()

		got, _, err := digest.FromReader(f)
		if err != nil {
			return fmt.Errorf("hash %s: %w", path, err)
		}
		checked++
		if got != e.Digest {
			mismatched++
		}
		return nil
	})
	if scanErr != nil {
		fmt.Println(errStyle.Render("  ✗ manifest scan failed"))
		fmt.Println(subtleStyle.Render("    " + scanErr.Error()))
		fmt.Println()
		return scanErr
	}

	switch {
	case missing == 0:
		fmt.Println(okStyle.Render(fmt.Sprintf("  ✓ %d/%d entries present in cas", total, total)))
	default:
		fmt.Println(warnStyle.Render(fmt.Sprintf("  ⚠ %d/%d entries present (%d missing)", total-missing, total, missing)))
	}

	if doctorRehash {
		if mismatched == 0 {
			fmt.Println(okStyle.Render(fmt.Sprintf("  ✓ rehashed %d blobs, all digests matched", checked)))
		} else {
			fmt.Println(errStyle.Render(fmt.Sprintf("  ✗ %d/%d rehashed blobs had a mismatched digest (corruption)", mismatched, checked)))
			fmt.Println()
			return fmt.Errorf("manifest rehash detected %d corrupt blobs", mismatched)
		}
	}

	fmt.Println()
	return nil
}

// checkRegistry verifies the global manifest registry's entries still
// point at manifests that exist on disk.
func checkRegistry() error {
	fmt.Println(headerStyle.Render("Registry Checks"))

	reg, err := registry.Open()
	if err != nil {
		fmt.Println(errStyle.Render("  ✗ could not open registry"))
		fmt.Println(subtleStyle.Render("    " + err.Error()))
		fmt.Println()
		return fmt.Errorf("cannot open registry: %w", err)
	}

	records, err := reg.List()
	if err != nil {
		fmt.Println(errStyle.Render("  ✗ could not list registry entries"))
		fmt.Println()
		return fmt.Errorf("cannot list registry: %w", err)
	}

	fmt.Println(okStyle.Render(fmt.Sprintf("  ✓ %d live manifest(s) registered", len(records))))

	if deepCheck {
		stale := 0
		cutoff := time.Now().Add(-30 * 24 * time.Hour)
		for _, r := range records {
			if r.LastSeen.Before(cutoff) {
				stale++
				fmt.Println(subtleStyle.Render(fmt.Sprintf("    stale: %s (last seen %s)", r.ProjectRoot, r.LastSeen.Format(time.RFC3339))))
			}
		}
		if stale == 0 {
			fmt.Println(okStyle.Render("  ✓ no manifests stale beyond 30 days"))
		} else {
			fmt.Println(warnStyle.Render(fmt.Sprintf("  ⚠ %d manifest(s) not seen in 30+ days (run `vrift gc --prune-stale`)", stale)))
		}
	}

	fmt.Println()
	return nil
}
