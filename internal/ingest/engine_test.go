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

package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mfinelli/vrift/internal/cas"
	"github.com/mfinelli/vrift/internal/ingest"
	"github.com/mfinelli/vrift/internal/manifest"
)

func TestIngestSolidWritesManifestAndCAS(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("alpha"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("bravo"), 0o644))

	casRoot := t.TempDir()
	store, err := cas.Open(casRoot)
	require.NoError(t, err)
	defer store.Close()

	engine := ingest.New(store, nil)

	manifestPath := filepath.Join(t.TempDir(), "manifest.lmdb")
	summary, err := engine.Ingest(context.Background(), ingest.IngestOptions{
		ProjectRoot:  root,
		ManifestPath: manifestPath,
		Mode:         ingest.ModeSolid,
	})
	require.NoError(t, err)
	require.Equal(t, 2, summary.FilesSeen)
	require.Equal(t, 2, summary.FilesIngested)

	mstore, err := manifest.Open(manifestPath)
	require.NoError(t, err)
	defer mstore.Close()

	e, ok, err := mstore.Lookup("a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, store.Has(e.Digest))

	// Solid mode must leave the original file in place.
	require.FileExists(t, filepath.Join(root, "a.txt"))
}

func TestIngestDedupesIdenticalContent(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "one.txt"), []byte("same"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "two.txt"), []byte("same"), 0o644))

	casRoot := t.TempDir()
	store, err := cas.Open(casRoot)
	require.NoError(t, err)
	defer store.Close()

	engine := ingest.New(store, nil)

	summary, err := engine.Ingest(context.Background(), ingest.IngestOptions{
		ProjectRoot:  root,
		ManifestPath: filepath.Join(t.TempDir(), "manifest.lmdb"),
		Mode:         ingest.ModeSolid,
	})
	require.NoError(t, err)
	require.Equal(t, 2, summary.FilesSeen)
	require.Equal(t, 1, summary.FilesIngested)
	require.Equal(t, 1, summary.FilesDeduped)
}

func TestIngestSkipsIgnoredPatterns(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.txt"), []byte("keep"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skip.log"), []byte("skip"), 0o644))

	casRoot := t.TempDir()
	store, err := cas.Open(casRoot)
	require.NoError(t, err)
	defer store.Close()

	engine := ingest.New(store, nil)

	summary, err := engine.Ingest(context.Background(), ingest.IngestOptions{
		ProjectRoot:    root,
		ManifestPath:   filepath.Join(t.TempDir(), "manifest.lmdb"),
		Mode:           ingest.ModeSolid,
		IgnorePatterns: []string{"*.log"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, summary.FilesSeen)
}

func TestIngestWritesSymlinkTargetBlob(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "real.txt"), []byte("real"), 0o644))
	require.NoError(t, os.Symlink("real.txt", filepath.Join(root, "link.txt")))

	casRoot := t.TempDir()
	store, err := cas.Open(casRoot)
	require.NoError(t, err)
	defer store.Close()

	engine := ingest.New(store, nil)

	manifestPath := filepath.Join(t.TempDir(), "manifest.lmdb")
	_, err = engine.Ingest(context.Background(), ingest.IngestOptions{
		ProjectRoot:  root,
		ManifestPath: manifestPath,
		Mode:         ingest.ModeSolid,
	})
	require.NoError(t, err)

	mstore, err := manifest.Open(manifestPath)
	require.NoError(t, err)
	defer mstore.Close()

	e, ok, err := mstore.Lookup("link.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, manifest.KindSymlink, e.Kind)

	// The target bytes ("real.txt") must actually be committed to CAS,
	// not merely hashed, so the manifest alone is enough to reconstruct
	// the symlink without re-reading the source tree.
	require.True(t, store.Has(e.Digest))

	f, err := store.OpenBlob(e.Digest)
	require.NoError(t, err)
	defer f.Close()

	got := make([]byte, e.Size)
	_, err = f.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, "real.txt", string(got))
}

func TestIngestPhantomRemovesSource(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	root := t.TempDir()
	srcPath := filepath.Join(root, "gone.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("phantom"), 0o644))

	casRoot := t.TempDir()
	store, err := cas.Open(casRoot)
	require.NoError(t, err)
	defer store.Close()

	engine := ingest.New(store, nil)

	_, err = engine.Ingest(context.Background(), ingest.IngestOptions{
		ProjectRoot:  root,
		ManifestPath: filepath.Join(t.TempDir(), "manifest.lmdb"),
		Mode:         ingest.ModePhantom,
	})
	require.NoError(t, err)
	require.NoFileExists(t, srcPath)
}
