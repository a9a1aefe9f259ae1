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

package manifest_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mfinelli/vrift/internal/digest"
	"github.com/mfinelli/vrift/internal/manifest"
)

func openStore(t *testing.T) *manifest.Store {
	t.Helper()
	s, err := manifest.Open(filepath.Join(t.TempDir(), "manifest.lmdb"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEntryRoundTrip(t *testing.T) {
	e := manifest.Entry{
		Kind:         manifest.KindFile,
		Digest:       digest.Hash([]byte("content")),
		Size:         7,
		ModTimeNanos: 123456789,
		Mode:         0o644,
	}

	b, err := e.MarshalBinary()
	require.NoError(t, err)

	var got manifest.Entry
	require.NoError(t, got.UnmarshalBinary(b))
	require.Equal(t, e, got)
}

func TestEntryRoundTripWithPackRef(t *testing.T) {
	e := manifest.Entry{
		Kind:    manifest.KindFile,
		Digest:  digest.Hash([]byte("packed")),
		Size:    3,
		Mode:    0o644,
		PackRef: &manifest.PackRef{PackID: 7, Offset: 4096},
	}

	b, err := e.MarshalBinary()
	require.NoError(t, err)

	var got manifest.Entry
	require.NoError(t, got.UnmarshalBinary(b))
	require.Equal(t, e.PackRef, got.PackRef)
	require.NotZero(t, got.Flags&manifest.FlagHasPackRef)
}

func TestPutAndLookup(t *testing.T) {
	s := openStore(t)

	e := manifest.Entry{Kind: manifest.KindFile, Digest: digest.Hash([]byte("a")), Size: 1, Mode: 0o644}

	txn, err := s.BeginWrite(context.Background())
	require.NoError(t, err)
	require.NoError(t, txn.Put("src/main.go", e))
	require.NoError(t, txn.Commit())

	got, ok, err := s.Lookup("/src/main.go")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, e.Digest, got.Digest)
}

func TestScanPrefix(t *testing.T) {
	s := openStore(t)

	txn, err := s.BeginWrite(context.Background())
	require.NoError(t, err)
	require.NoError(t, txn.Put("src/a.go", manifest.Entry{Kind: manifest.KindFile, Mode: 0o644}))
	require.NoError(t, txn.Put("src/b.go", manifest.Entry{Kind: manifest.KindFile, Mode: 0o644}))
	require.NoError(t, txn.Put("docs/readme.md", manifest.Entry{Kind: manifest.KindFile, Mode: 0o644}))
	require.NoError(t, txn.Commit())

	var seen []string
	require.NoError(t, s.ScanPrefix("src", func(path string, e manifest.Entry) error {
		seen = append(seen, path)
		return nil
	}))
	require.Equal(t, []string{"src/a.go", "src/b.go"}, seen)
}

func TestDeletePrefix(t *testing.T) {
	s := openStore(t)

	txn, err := s.BeginWrite(context.Background())
	require.NoError(t, err)
	require.NoError(t, txn.Put("src/a.go", manifest.Entry{Kind: manifest.KindFile, Mode: 0o644}))
	require.NoError(t, txn.Put("src/b.go", manifest.Entry{Kind: manifest.KindFile, Mode: 0o644}))
	require.NoError(t, txn.Commit())

	txn2, err := s.BeginWrite(context.Background())
	require.NoError(t, err)
	require.NoError(t, txn2.DeletePrefix("src"))
	require.NoError(t, txn2.Commit())

	_, ok, err := s.Lookup("src/a.go")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMetaRoundTrip(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.SetMeta("ingest_mode", "solid"))

	v, err := s.Meta("ingest_mode")
	require.NoError(t, err)
	require.Equal(t, "solid", v)
}

func TestPutSortedInsertsInOrder(t *testing.T) {
	s := openStore(t)

	m := map[string]manifest.Entry{
		"z.txt": {Kind: manifest.KindFile, Mode: 0o644},
		"a.txt": {Kind: manifest.KindFile, Mode: 0o644},
		"m.txt": {Kind: manifest.KindFile, Mode: 0o644},
	}

	txn, err := s.BeginWrite(context.Background())
	require.NoError(t, err)
	require.NoError(t, txn.PutSorted(m))
	require.NoError(t, txn.Commit())

	var seen []string
	require.NoError(t, s.ScanPrefix("", func(path string, e manifest.Entry) error {
		seen = append(seen, path)
		return nil
	}))
	require.Equal(t, []string{"a.txt", "m.txt", "z.txt"}, seen)
}
