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

//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package gc

import "github.com/mfinelli/vrift/internal/vrifterr"

// flock has no portable equivalent on this platform; GC runs without
// cross-process mutual exclusion here, degrading per the same policy as
// the CAS immutable flag.
func flock(fd uintptr, exclusive bool) error {
	return vrifterr.ErrNotSupported
}

func unflock(fd uintptr) error {
	return vrifterr.ErrNotSupported
}
