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

// Package shim is built as a cgo -buildmode=c-shared library and
// preloaded (LD_PRELOAD-style) ahead of libc in a target process. It
// intercepts a handful of path-taking syscalls and rewrites paths that
// fall under a project's VFS prefix onto the real working tree, routing
// reads/writes through the vrift daemon's content store once fully
// initialized.
//
// A preloaded constructor runs before the process's own main, and
// before the Go runtime's own init has necessarily finished settling --
// initState tracks that window so proxies fall back to the raw libc
// call until the shim is actually ready to translate.
package shim

import "sync/atomic"

// initState values, highest-to-lowest as initialization progresses.
const (
	// EarlyInit: the constructor has run but the Go runtime/config has
	// not yet loaded. Every proxy must pass through untouched.
	EarlyInit int32 = 2
	// RustInit: environment variables and the RPC client are set up but
	// the translator hasn't been published yet.
	RustInit int32 = 1
	// Ready: the translator is published and proxies may rewrite paths.
	Ready int32 = 0
)

var initState int32 = EarlyInit

// State returns the current initialization stage.
func State() int32 {
	return atomic.LoadInt32(&initState)
}

// advance moves initState forward (numerically downward, since Ready is
// the terminal, lowest value) and is idempotent under concurrent calls.
func advance(to int32) {
	for {
		cur := atomic.LoadInt32(&initState)
		if to >= cur {
			return
		}
		if atomic.CompareAndSwapInt32(&initState, cur, to) {
			return
		}
	}
}

func init() {
	earlyInit()
}

// earlyInit runs from this package's init function, i.e. when the Go
// runtime inside the loaded shared library initializes. It moves the
// state to RustInit, reads the environment (initEnv publishes the
// translator and advances to Ready when both VRIFT_VFS_PREFIX and
// VRIFT_PROJECT_ROOT are set) and configures the circuit breaker.
func earlyInit() {
	advance(RustInit)
	initEnv()
	initBreaker()
}

// finishInit is called once the translator has been constructed and
// published, marking the shim fully operational.
func finishInit(t *Translator) {
	publishTranslator(t)
	advance(Ready)
}
