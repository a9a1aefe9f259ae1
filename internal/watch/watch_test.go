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

package watch_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mfinelli/vrift/internal/watch"
)

func TestWatcherEmitsCreateEvent(t *testing.T) {
	root := t.TempDir()

	w, err := watch.New(root, nil)
	require.NoError(t, err)
	defer w.Close()

	go w.Run()

	target := filepath.Join(root, "new.txt")
	require.NoError(t, os.WriteFile(target, []byte("hi"), 0o644))

	select {
	case ev := <-w.Events():
		require.Equal(t, target, ev.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for create event")
	}
}

func TestWatcherIgnoresVriftDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".vrift"), 0o755))

	w, err := watch.New(root, nil)
	require.NoError(t, err)
	defer w.Close()

	go w.Run()

	require.NoError(t, os.WriteFile(filepath.Join(root, ".vrift", "manifest.lmdb"), []byte("x"), 0o644))

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event for ignored path: %+v", ev)
	case <-time.After(500 * time.Millisecond):
	}
}
