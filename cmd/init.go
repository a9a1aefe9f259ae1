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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mfinelli/vrift/internal/cas"
	"github.com/mfinelli/vrift/internal/manifest"
	"github.com/mfinelli/vrift/internal/registry"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "initializes the vrift CAS store, manifest, and registry",
	Long: `Initialize vrift's local state.

Creates the content-addressed store's sharded directory layout, opens (or
creates) the project's manifest database, and registers it with the global
manifest registry. This command is safe to run multiple times and will not
overwrite existing blobs or manifest entries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cas.Open(viper.GetString("cas_root"))
		if err != nil {
			return fmt.Errorf("error opening cas store: %w", err)
		}
		defer store.Close()

		mstore, err := manifest.Open(viper.GetString("manifest_path"))
		if err != nil {
			return fmt.Errorf("error opening manifest: %w", err)
		}
		defer mstore.Close()

		reg, err := registry.Open()
		if err != nil {
			return fmt.Errorf("error opening registry: %w", err)
		}

		if err := reg.Add(viper.GetString("manifest_path"), viper.GetString("project_root")); err != nil {
			return fmt.Errorf("error registering manifest: %w", err)
		}

		fmt.Println("vrift initialized:")
		fmt.Println("  cas:      " + viper.GetString("cas_root"))
		fmt.Println("  manifest: " + viper.GetString("manifest_path"))
		fmt.Println("  project:  " + viper.GetString("project_root"))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
