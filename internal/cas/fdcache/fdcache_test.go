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

package fdcache_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mfinelli/vrift/internal/cas/fdcache"
	"github.com/mfinelli/vrift/internal/digest"
)

func openTemp(t *testing.T, name string) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	return f
}

func TestPutThenGet(t *testing.T) {
	c, err := fdcache.New(shardAlignedCapacity())
	require.NoError(t, err)
	defer c.Close()

	d := digest.Hash([]byte("one"))
	f := openTemp(t, "one")
	c.Put(d, f)

	got, ok := c.Get(d)
	require.True(t, ok)
	require.NotEqual(t, f.Fd(), got.Fd(), "Get must hand back a dup'd descriptor, not the cache's own")

	buf := make([]byte, 1)
	_, err = got.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "x", string(buf))

	// Closing the dup'd handle must not affect the cache's own descriptor:
	// a subsequent Get must still succeed.
	require.NoError(t, got.Close())
	again, ok := c.Get(d)
	require.True(t, ok)
	defer again.Close()
}

func TestEvictClosesHandle(t *testing.T) {
	c, err := fdcache.New(shardAlignedCapacity())
	require.NoError(t, err)
	defer c.Close()

	d := digest.Hash([]byte("two"))
	f := openTemp(t, "two")
	c.Put(d, f)
	c.Evict(d)

	_, ok := c.Get(d)
	require.False(t, ok)

	_, err = f.Stat()
	require.ErrorIs(t, err, os.ErrClosed, "Evict must close the cached handle")
}

func TestDefaultCapacityIsPositive(t *testing.T) {
	require.Greater(t, fdcache.DefaultCapacity(), 0)
}

// shardAlignedCapacity picks a capacity comfortably above the shard count
// so per-shard capacity in tests is never truncated to zero.
func shardAlignedCapacity() int {
	return 256
}
