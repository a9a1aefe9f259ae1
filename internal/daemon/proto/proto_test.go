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

package proto_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mfinelli/vrift/internal/daemon/proto"
	"github.com/mfinelli/vrift/internal/digest"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	in := proto.Message{
		Kind:   proto.KindStat,
		Path:   "src/main.go",
		OK:     true,
		Size:   42,
		Digest: digest.Hash([]byte("x")),
	}
	require.NoError(t, proto.WriteMessage(&buf, in))

	out, err := proto.ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestReadMessageRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})

	_, err := proto.ReadMessage(&buf)
	require.Error(t, err)
}

func TestMultipleMessagesOnOneStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, proto.WriteMessage(&buf, proto.Message{Kind: proto.KindHealth, Healthy: true}))
	require.NoError(t, proto.WriteMessage(&buf, proto.Message{Kind: proto.KindHealth, Healthy: false}))

	m1, err := proto.ReadMessage(&buf)
	require.NoError(t, err)
	require.True(t, m1.Healthy)

	m2, err := proto.ReadMessage(&buf)
	require.NoError(t, err)
	require.False(t, m2.Healthy)
}
