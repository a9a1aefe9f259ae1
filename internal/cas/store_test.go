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

package cas_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mfinelli/vrift/internal/cas"
	"github.com/mfinelli/vrift/internal/digest"
)

func TestOpenCreatesShardLayout(t *testing.T) {
	root := t.TempDir()
	s, err := cas.Open(root)
	require.NoError(t, err)
	defer s.Close()

	require.DirExists(t, filepath.Join(root, "00"))
	require.DirExists(t, filepath.Join(root, "ff"))
	require.FileExists(t, filepath.Join(root, ".l2shards"))
}

func TestPutStreamThenHasAndOpen(t *testing.T) {
	root := t.TempDir()
	s, err := cas.Open(root)
	require.NoError(t, err)
	defer s.Close()

	content := []byte("hello, vrift")
	d, _, err := digest.FromReader(bytes.NewReader(content))
	require.NoError(t, err)

	require.False(t, s.Has(d))

	res, err := s.PutStream(context.Background(), bytes.NewReader(content), d)
	require.NoError(t, err)
	require.False(t, res.Existed)
	require.Equal(t, int64(len(content)), res.Size)

	require.True(t, s.Has(d))

	f, err := s.OpenBlob(d)
	require.NoError(t, err)
	got := make([]byte, len(content))
	_, err = f.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestPutStreamDedup(t *testing.T) {
	root := t.TempDir()
	s, err := cas.Open(root)
	require.NoError(t, err)
	defer s.Close()

	content := []byte("dup me")
	d, _, err := digest.FromReader(bytes.NewReader(content))
	require.NoError(t, err)

	_, err = s.PutStream(context.Background(), bytes.NewReader(content), d)
	require.NoError(t, err)

	res, err := s.PutStream(context.Background(), bytes.NewReader(content), d)
	require.NoError(t, err)
	require.True(t, res.Existed)
}

func TestPutStreamDigestMismatchIsCorruption(t *testing.T) {
	root := t.TempDir()
	s, err := cas.Open(root)
	require.NoError(t, err)
	defer s.Close()

	wrong := digest.Hash([]byte("something else entirely"))
	_, err = s.PutStream(context.Background(), bytes.NewReader([]byte("actual content")), wrong)
	require.Error(t, err)
}

func TestPutHardlinkDedupAndCrossDeviceFallback(t *testing.T) {
	root := t.TempDir()
	s, err := cas.Open(root)
	require.NoError(t, err)
	defer s.Close()

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "file.bin")
	content := []byte("linked content")
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	d, _, err := digest.FromReader(bytes.NewReader(content))
	require.NoError(t, err)

	res, err := s.PutHardlink(context.Background(), srcPath, d)
	require.NoError(t, err)
	require.False(t, res.Existed)
	require.True(t, s.Has(d))
}

func TestDeleteRemovesBlob(t *testing.T) {
	root := t.TempDir()
	s, err := cas.Open(root)
	require.NoError(t, err)
	defer s.Close()

	content := []byte("to be deleted")
	d, _, err := digest.FromReader(bytes.NewReader(content))
	require.NoError(t, err)

	_, err = s.PutStream(context.Background(), bytes.NewReader(content), d)
	require.NoError(t, err)
	require.True(t, s.Has(d))

	require.NoError(t, s.Delete(d))
	require.False(t, s.Has(d))
}

func TestPathForIsStableAndSharded(t *testing.T) {
	root := t.TempDir()
	d := digest.Hash([]byte("stable"))
	p1 := cas.PathFor(root, d)
	p2 := cas.PathFor(root, d)
	require.Equal(t, p1, p2)
	require.Contains(t, p1, root)
}
