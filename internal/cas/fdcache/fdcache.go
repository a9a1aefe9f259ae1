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

// Package fdcache holds a bounded pool of open, read-only blob file
// descriptors so hot digests served repeatedly by the shim/daemon don't
// pay an open(2) round trip on every access. It is sharded to keep a
// single global lock off the hot path.
package fdcache

import (
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sys/unix"

	"github.com/mfinelli/vrift/internal/digest"
)

const shardCount = 32

// Cache is a sharded LRU of open *os.File handles keyed by blob digest.
type Cache struct {
	shards [shardCount]shard
}

type shard struct {
	mu  sync.Mutex
	lru *lru.LRU[digest.Digest, *os.File]
}

// DefaultCapacity derives a reasonable fd cache capacity from the
// process's open-file rlimit: 80% of the soft limit, leaving headroom
// for the manifest store, sockets and anything else holding descriptors.
func DefaultCapacity() int {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return 1024
	}
	cap := int(float64(rl.Cur) * 0.8)
	if cap < 64 {
		cap = 64
	}
	return cap
}

// New builds a Cache with the given total capacity, spread evenly across
// shardCount shards. Each shard closes its own evicted files.
func New(capacity int) (*Cache, error) {
	perShard := capacity / shardCount
	if perShard < 1 {
		perShard = 1
	}

	c := &Cache{}
	for i := range c.shards {
		l, err := lru.NewLRU[digest.Digest, *os.File](perShard, func(_ digest.Digest, f *os.File) {
			_ = f.Close()
		})
		if err != nil {
			return nil, err
		}
		c.shards[i].lru = l
	}
	return c, nil
}

func (c *Cache) shardFor(d digest.Digest) *shard {
	return &c.shards[d[0]%shardCount]
}

// Get returns a dup'd descriptor onto the blob cached for d, if present,
// wrapped in its own *os.File. The cache retains ownership of the entry
// it holds internally, so the caller's Close never closes the shared
// descriptor out from under the next cache hit (§5: "cache entries hold
// dup'd descriptors so eviction never closes an in-use fd").
func (c *Cache) Get(d digest.Digest) (*os.File, bool) {
	s := c.shardFor(d)
	s.mu.Lock()
	f, ok := s.lru.Get(d)
	s.mu.Unlock()
	if !ok {
		return nil, false
	}

	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return nil, false
	}
	return os.NewFile(uintptr(fd), f.Name()), true
}

// Put inserts f into the cache under d. If the shard is at capacity, the
// least recently used entry is closed and evicted to make room. Put does
// not close a pre-existing entry for the same digest in favor of the
// caller's new handle, since the eviction callback only fires for entries
// actually removed by the LRU.
func (c *Cache) Put(d digest.Digest, f *os.File) {
	s := c.shardFor(d)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Add(d, f)
}

// Evict removes and closes the cached handle for d, if any. Used by GC
// before unlinking a blob so a stale fd isn't handed out afterward.
func (c *Cache) Evict(d digest.Digest) {
	s := c.shardFor(d)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Remove(d)
}

// Close closes every cached file handle across all shards.
func (c *Cache) Close() error {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		s.lru.Purge()
		s.mu.Unlock()
	}
	return nil
}
