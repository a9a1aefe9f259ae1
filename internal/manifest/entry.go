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

package manifest

import (
	"encoding/binary"
	"fmt"

	"github.com/mfinelli/vrift/internal/digest"
)

// Kind tags what an Entry's Digest addresses.
type Kind byte

const (
	KindFile Kind = iota + 1
	KindDir
	KindSymlink
)

// Flag bits stored in an Entry's 2-byte flags field.
type Flag uint16

const (
	// FlagHasPackRef means this Entry carries a trailing PackRef beyond
	// the fixed 56-byte record.
	FlagHasPackRef Flag = 1 << iota
)

// entrySize is the fixed, always-present portion of a marshaled Entry:
// 1 (kind) + 32 (digest) + 8 (size) + 8 (mtime nanos) + 4 (mode) +
// 2 (flags) + 1 (reserved) = 56 bytes.
const entrySize = 56

// PackRef locates an entry's content inside a pack file rather than a
// standalone CAS blob (§3, reserved for future small-file packing; not
// produced by today's ingest path but round-trips if present).
type PackRef struct {
	PackID uint32
	Offset uint32
}

// Entry is one manifest record: a file, directory, or symlink captured at
// ingest time.
type Entry struct {
	Kind         Kind
	Digest       digest.Digest
	Size         int64
	ModTimeNanos int64
	Mode         uint32
	Flags        Flag
	PackRef      *PackRef
}

// MarshalBinary encodes e into its on-disk wire form: a fixed 56-byte
// header, followed by an 8-byte PackRef when FlagHasPackRef is set.
func (e Entry) MarshalBinary() ([]byte, error) {
	flags := e.Flags
	if e.PackRef != nil {
		flags |= FlagHasPackRef
	}

	buf := make([]byte, entrySize, entrySize+8)
	buf[0] = byte(e.Kind)
	copy(buf[1:33], e.Digest[:])
	binary.BigEndian.PutUint64(buf[33:41], uint64(e.Size))
	binary.BigEndian.PutUint64(buf[41:49], uint64(e.ModTimeNanos))
	binary.BigEndian.PutUint32(buf[49:53], e.Mode)
	binary.BigEndian.PutUint16(buf[53:55], uint16(flags))
	// buf[55] is reserved, left zero.

	if e.PackRef != nil {
		var ref [8]byte
		binary.BigEndian.PutUint32(ref[0:4], e.PackRef.PackID)
		binary.BigEndian.PutUint32(ref[4:8], e.PackRef.Offset)
		buf = append(buf, ref[:]...)
	}

	return buf, nil
}

// UnmarshalBinary decodes b produced by MarshalBinary.
func (e *Entry) UnmarshalBinary(b []byte) error {
	if len(b) < entrySize {
		return fmt.Errorf("manifest: entry record too short: %d bytes", len(b))
	}

	e.Kind = Kind(b[0])
	copy(e.Digest[:], b[1:33])
	e.Size = int64(binary.BigEndian.Uint64(b[33:41]))
	e.ModTimeNanos = int64(binary.BigEndian.Uint64(b[41:49]))
	e.Mode = binary.BigEndian.Uint32(b[49:53])
	e.Flags = Flag(binary.BigEndian.Uint16(b[53:55]))
	e.PackRef = nil

	if e.Flags&FlagHasPackRef != 0 {
		if len(b) < entrySize+8 {
			return fmt.Errorf("manifest: entry missing pack ref: %d bytes", len(b))
		}
		e.PackRef = &PackRef{
			PackID: binary.BigEndian.Uint32(b[entrySize : entrySize+4]),
			Offset: binary.BigEndian.Uint32(b[entrySize+4 : entrySize+8]),
		}
	}

	return nil
}
