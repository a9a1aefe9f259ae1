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
	"os"
	"strconv"
	"sync/atomic"
)

// defaultBreakerThreshold is the number of consecutive daemon RPC
// failures tolerated before the shim stops trying to reach the daemon
// at all and falls back to raw passthrough for every call. Lower values
// fail open faster against a flaky daemon; higher values mask a real
// outage longer. Kept at 5 to match the documented default while
// remaining overridable via VRIFT_CIRCUIT_BREAKER_THRESHOLD.
const defaultBreakerThreshold = 5

var (
	breakerThreshold int32 = defaultBreakerThreshold
	breakerFailures  int32
)

// initBreaker parses VRIFT_CIRCUIT_BREAKER_THRESHOLD once during
// earlyInit. An invalid or absent value keeps defaultBreakerThreshold.
func initBreaker() {
	v := os.Getenv("VRIFT_CIRCUIT_BREAKER_THRESHOLD")
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return
	}
	atomic.StoreInt32(&breakerThreshold, int32(n))
}

// breakerOpen reports whether the circuit has tripped -- the shim
// should not attempt another daemon RPC and should fall back to raw
// passthrough.
func breakerOpen() bool {
	return atomic.LoadInt32(&breakerFailures) >= atomic.LoadInt32(&breakerThreshold)
}

// recordSuccess resets the consecutive-failure counter.
func recordSuccess() {
	atomic.StoreInt32(&breakerFailures, 0)
}

// recordFailure increments the consecutive-failure counter.
func recordFailure() {
	atomic.AddInt32(&breakerFailures, 1)
}
