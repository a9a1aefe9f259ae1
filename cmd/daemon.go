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

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mfinelli/vrift/internal/daemon"
	"github.com/mfinelli/vrift/internal/ingest"
)

var daemonMode string

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "run the long-lived process serving this project over a Unix socket",
	Long: `Daemon opens the project's manifest and CAS store, starts a filesystem
watcher over project_root, and listens on socket_path for the shim's stat/open
requests, re-ingesting individual files as the watcher reports them changing.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mode := ingest.ModeSolid
		if daemonMode == "phantom" {
			mode = ingest.ModePhantom
		}

		d, err := daemon.New(daemon.Config{
			SocketPath:   viper.GetString("socket_path"),
			ProjectRoot:  viper.GetString("project_root"),
			ManifestPath: viper.GetString("manifest_path"),
			CASRoot:      viper.GetString("cas_root"),
			Mode:         mode,
		})
		if err != nil {
			return fmt.Errorf("error starting daemon: %w", err)
		}
		defer d.Close()

		logrus.WithFields(logrus.Fields{
			"socket":  viper.GetString("socket_path"),
			"project": viper.GetString("project_root"),
		}).Info("vrift daemon listening")

		return d.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().StringVar(&daemonMode, "mode", "solid", "re-ingest mode: solid (hardlink) or phantom (rename)")
}
