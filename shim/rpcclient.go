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

package shim

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/mfinelli/vrift/internal/daemon/proto"
)

const defaultCallDeadline = 5 * time.Second

// socketPath resolves VRIFT_SOCKET_PATH, defaulting to /tmp/vrift.sock
// to match the daemon's own default.
func socketPath() string {
	if p := os.Getenv("VRIFT_SOCKET_PATH"); p != "" {
		return p
	}
	return "/tmp/vrift.sock"
}

// callDaemon dials the daemon's Unix socket, sends req, and reads the
// response, observing the circuit breaker on both sides of the call.
func callDaemon(req proto.Message) (proto.Message, error) {
	if breakerOpen() {
		return proto.Message{}, fmt.Errorf("shim: circuit breaker open")
	}

	conn, err := net.DialTimeout("unix", socketPath(), defaultCallDeadline)
	if err != nil {
		recordFailure()
		return proto.Message{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(defaultCallDeadline)); err != nil {
		recordFailure()
		return proto.Message{}, err
	}

	if err := proto.WriteMessage(conn, req); err != nil {
		recordFailure()
		return proto.Message{}, err
	}

	resp, err := proto.ReadMessage(conn)
	if err != nil {
		recordFailure()
		return proto.Message{}, err
	}

	recordSuccess()
	return resp, nil
}

// statRemote asks the daemon for path's manifest entry.
func statRemote(path string) (proto.Message, error) {
	return callDaemon(proto.Message{Kind: proto.KindStat, Path: path})
}

// openRemote asks the daemon to warm its content cache for path's blob.
func openRemote(path string) (proto.Message, error) {
	return callDaemon(proto.Message{Kind: proto.KindOpen, Path: path})
}
