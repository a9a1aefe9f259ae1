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

package cas

import (
	"path/filepath"

	"github.com/mfinelli/vrift/internal/digest"
)

// hexTable is a precomputed byte->2-hex-char lookup, avoiding
// encoding/hex's generic path on the hot lookup routine. The helpers
// below still allocate: each returns a new string, and leafName builds
// its name in a heap buffer.
var hexTable = func() [256][2]byte {
	const digits = "0123456789abcdef"
	var t [256][2]byte
	for i := 0; i < 256; i++ {
		t[i][0] = digits[i>>4]
		t[i][1] = digits[i&0xf]
	}
	return t
}()

// shardOf returns the (l1, l2) shard indices for d: one byte of fan-out at
// each of two directory levels, pre-created (l1, 256 dirs) and lazily
// created (l2, up to 256 per l1, 65,536 total) per §3 B3's stated
// cardinalities.
func shardOf(d digest.Digest) (l1, l2 byte) {
	return d[0], d[1]
}

// l1Name returns the hex name of first-level shard i (00..ff).
func l1Name(i int) string {
	b := hexTable[byte(i)]
	return string(b[:])
}

// l2Name returns the hex name of the second-level shard for digest byte b.
func l2Name(b byte) string {
	h := hexTable[b]
	return string(h[:])
}

// leafName returns the filename within the L2 shard: the remaining 30
// digest bytes hex-encoded (60 characters).
func leafName(d digest.Digest) string {
	buf := make([]byte, 0, (digest.Size-2)*2)
	for _, b := range d[2:] {
		h := hexTable[b]
		buf = append(buf, h[0], h[1])
	}
	return string(buf)
}

// PathFor returns the on-disk path for d under root: root/<l1>/<l2>/<leaf>.
func PathFor(root string, d digest.Digest) string {
	l1, l2 := shardOf(d)
	return filepath.Join(root, l1Name(int(l1)), l2Name(l2), leafName(d))
}

// shardIndex packs (l1, l2) into a single 16-bit index for the presence
// bitset: 256 * l1 + l2, covering the full 65,536-entry address space.
func shardIndex(l1, l2 byte) int {
	return int(l1)<<8 | int(l2)
}
