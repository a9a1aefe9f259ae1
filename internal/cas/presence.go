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
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// presenceBits is a memory-mapped bitset recording which of the 65,536
// possible (l1, l2) second-level shard directories have been created, so
// repeated ingests skip an L2 mkdir/stat round-trip (§4.B "a bit-set
// tracks existence to avoid stat round-trips"). It is backed by a fixed
// 8 KiB file (65,536 bits), mmap'd for the lifetime of the Store.
//
// Access is guarded by Store.mu; the bitset itself does no internal
// locking, since directory creation is rare relative to blob lookups.
type presenceBits struct {
	data []byte // mmap'd region, len == presenceBytes
}

const presenceBytes = (1 << 16) / 8 // 65,536 bits = 8 KiB

func openPresenceBits(path string) (*presenceBits, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cas: open presence bitset: %w", err)
	}
	defer f.Close()

	if err := f.Truncate(presenceBytes); err != nil {
		return nil, fmt.Errorf("cas: size presence bitset: %w", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, presenceBytes, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("cas: mmap presence bitset: %w", err)
	}

	return &presenceBits{data: data}, nil
}

func (p *presenceBits) close() error {
	if p == nil || p.data == nil {
		return nil
	}
	err := unix.Munmap(p.data)
	p.data = nil
	return err
}

// test reports whether the bit at index is set.
func (p *presenceBits) test(index int) bool {
	return p.data[index>>3]&(1<<uint(index&7)) != 0
}

// set marks index as present and reports whether it was already set.
func (p *presenceBits) set(index int) (already bool) {
	byteIdx := index >> 3
	bit := byte(1) << uint(index&7)
	before := p.data[byteIdx]
	p.data[byteIdx] = before | bit
	return before&bit != 0
}
