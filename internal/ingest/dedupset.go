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

package ingest

import (
	"sync"

	"github.com/mfinelli/vrift/internal/digest"
)

const dedupShards = 32

// dedupSet is a sharded in-memory set of digests seen during the current
// ingest run, so hashing the same content twice within one pass commits
// to the CAS exactly once. It is not persisted; cross-run dedup is the
// CAS store's own EEXIST handling.
type dedupSet struct {
	shards [dedupShards]struct {
		mu sync.Mutex
		m  map[digest.Digest]struct{}
	}
}

func newDedupSet() *dedupSet {
	s := &dedupSet{}
	for i := range s.shards {
		s.shards[i].m = make(map[digest.Digest]struct{})
	}
	return s
}

func (s *dedupSet) shardFor(d digest.Digest) int {
	return int(d[0]) % dedupShards
}

// addIfAbsent records d and reports whether it was already present.
func (s *dedupSet) addIfAbsent(d digest.Digest) (alreadySeen bool) {
	sh := &s.shards[s.shardFor(d)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.m[d]; ok {
		return true
	}
	sh.m[d] = struct{}{}
	return false
}
