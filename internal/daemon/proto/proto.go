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

// Package proto is the wire format spoken over the daemon's Unix socket:
// a 4-byte big-endian length prefix followed by a gob-encoded Message.
// gob is used rather than a schema-compiled format because the message
// set is small, fixed, and entirely internal to this binary -- the same
// reasoning the teacher applies when it reaches for encoding/json over a
// heavier serializer for its own local state files.
package proto

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/mfinelli/vrift/internal/digest"
)

// Kind identifies a Message's purpose.
type Kind byte

const (
	KindStat Kind = iota + 1
	KindOpen
	KindRegister
	KindHealth
)

// MaxMessageSize bounds a single frame's payload, guarding the daemon
// against a misbehaving client claiming an unbounded length prefix.
const MaxMessageSize = 16 << 20

// Message is the single envelope type exchanged in both directions;
// unused fields for a given Kind are simply left zero.
type Message struct {
	Kind Kind

	// Request fields.
	Path         string
	ProjectRoot  string
	ManifestPath string

	// Response fields.
	OK      bool
	Error   string
	Size    int64
	Mode    uint32
	Digest  digest.Digest
	IsDir   bool
	Healthy bool
}

// WriteMessage frames and writes m to w.
func WriteMessage(w io.Writer, m Message) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("proto: encode: %w", err)
	}
	if buf.Len() > MaxMessageSize {
		return fmt.Errorf("proto: message too large: %d bytes", buf.Len())
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))

	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("proto: write length prefix: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("proto: write payload: %w", err)
	}
	return nil
}

// ReadMessage reads one framed Message from r.
func ReadMessage(r io.Reader) (Message, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return Message{}, err
	}

	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > MaxMessageSize {
		return Message{}, fmt.Errorf("proto: claimed length %d exceeds max %d", n, MaxMessageSize)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, fmt.Errorf("proto: read payload: %w", err)
	}

	var m Message
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&m); err != nil {
		return Message{}, fmt.Errorf("proto: decode: %w", err)
	}
	return m, nil
}
