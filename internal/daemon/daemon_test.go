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

package daemon_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mfinelli/vrift/internal/daemon"
	"github.com/mfinelli/vrift/internal/daemon/proto"
	"github.com/mfinelli/vrift/internal/ingest"
)

func newTestDaemon(t *testing.T) (*daemon.Daemon, string) {
	t.Helper()

	stateDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", stateDir)

	projectRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectRoot, "hello.txt"), []byte("hello world"), 0o644))

	workDir := t.TempDir()
	cfg := daemon.Config{
		SocketPath:   filepath.Join(workDir, "vrift.sock"),
		ProjectRoot:  projectRoot,
		ManifestPath: filepath.Join(workDir, "manifest.lmdb"),
		CASRoot:      filepath.Join(workDir, "cas"),
		Mode:         ingest.ModeSolid,
	}

	d, err := daemon.New(cfg)
	require.NoError(t, err)

	return d, cfg.SocketPath
}

func dial(t *testing.T, socketPath string) net.Conn {
	t.Helper()

	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", socketPath)
		if err == nil {
			return conn
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("could not dial daemon socket: %v", err)
	return nil
}

func TestHealthRoundTrip(t *testing.T) {
	d, socketPath := newTestDaemon(t)
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Serve(ctx)

	conn := dial(t, socketPath)
	defer conn.Close()

	require.NoError(t, proto.WriteMessage(conn, proto.Message{Kind: proto.KindHealth}))
	resp, err := proto.ReadMessage(conn)
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.True(t, resp.Healthy)
}

func TestStatUnknownPathNotFound(t *testing.T) {
	d, socketPath := newTestDaemon(t)
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Serve(ctx)

	conn := dial(t, socketPath)
	defer conn.Close()

	require.NoError(t, proto.WriteMessage(conn, proto.Message{Kind: proto.KindStat, Path: "nope.txt"}))
	resp, err := proto.ReadMessage(conn)
	require.NoError(t, err)
	require.False(t, resp.OK)
}

func statPath(t *testing.T, conn net.Conn, path string) proto.Message {
	t.Helper()
	require.NoError(t, proto.WriteMessage(conn, proto.Message{Kind: proto.KindStat, Path: path}))
	resp, err := proto.ReadMessage(conn)
	require.NoError(t, err)
	return resp
}

// TestWatcherRenameRemovesOldManifestEntry drives a real rename(2) through
// the watcher and confirms the daemon removes the vacated source path's
// manifest entry instead of leaving it stale forever; fsnotify only ever
// reports the old side of a rename (no paired "to" path), so the daemon's
// Renamed handling must treat a vanished path like a deletion.
func TestWatcherRenameRemovesOldManifestEntry(t *testing.T) {
	stateDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", stateDir)

	projectRoot := t.TempDir()
	workDir := t.TempDir()
	cfg := daemon.Config{
		SocketPath:   filepath.Join(workDir, "vrift.sock"),
		ProjectRoot:  projectRoot,
		ManifestPath: filepath.Join(workDir, "manifest.lmdb"),
		CASRoot:      filepath.Join(workDir, "cas"),
		Mode:         ingest.ModeSolid,
	}

	d, err := daemon.New(cfg)
	require.NoError(t, err)
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Serve(ctx)

	conn := dial(t, cfg.SocketPath)
	defer conn.Close()

	oldAbs := filepath.Join(projectRoot, "old.txt")
	require.NoError(t, os.WriteFile(oldAbs, []byte("rename me"), 0o644))

	require.Eventually(t, func() bool {
		return statPath(t, conn, "old.txt").OK
	}, 2*time.Second, 20*time.Millisecond, "watcher never ingested the newly created file")

	newAbs := filepath.Join(projectRoot, "new.txt")
	require.NoError(t, os.Rename(oldAbs, newAbs))

	require.Eventually(t, func() bool {
		return !statPath(t, conn, "old.txt").OK
	}, 2*time.Second, 20*time.Millisecond, "stale manifest entry for the renamed-away path was never removed")

	require.Eventually(t, func() bool {
		return statPath(t, conn, "new.txt").OK
	}, 2*time.Second, 20*time.Millisecond, "renamed-to path was never ingested")
}

func TestRegisterRoundTrip(t *testing.T) {
	d, socketPath := newTestDaemon(t)
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Serve(ctx)

	conn := dial(t, socketPath)
	defer conn.Close()

	require.NoError(t, proto.WriteMessage(conn, proto.Message{
		Kind:         proto.KindRegister,
		ManifestPath: "/tmp/some-manifest.lmdb",
		ProjectRoot:  "/tmp/some-project",
	}))
	resp, err := proto.ReadMessage(conn)
	require.NoError(t, err)
	require.True(t, resp.OK)
}
