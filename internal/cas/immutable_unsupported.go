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

package cas

import "github.com/mfinelli/vrift/internal/vrifterr"

// setImmutable and clearImmutable change nothing on platforms without a
// filesystem immutable-flag primitive and return ErrNotSupported; blobs
// stored here carry no kernel write protection.
func setImmutable(path string) error {
	return vrifterr.ErrNotSupported
}

func clearImmutable(path string) error {
	return vrifterr.ErrNotSupported
}
