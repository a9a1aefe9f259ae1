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

//go:build darwin || freebsd || netbsd || openbsd

package cas

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// setImmutable sets the BSD/Darwin UF_IMMUTABLE chflags bit, the closest
// equivalent to Linux's FS_IMMUTABLE_FL on these platforms.
func setImmutable(path string) error {
	return chflag(path, unix.UF_IMMUTABLE, true)
}

func clearImmutable(path string) error {
	return chflag(path, unix.UF_IMMUTABLE, false)
}

func chflag(path string, flag int, enable bool) error {
	st, err := lstatFlags(path)
	if err != nil {
		return errNotSupported(err)
	}

	next := st
	if enable {
		next |= uint32(flag)
	} else {
		next &^= uint32(flag)
	}
	if next == st {
		return nil
	}

	if err := unix.Chflags(path, int(next)); err != nil {
		return errNotSupported(err)
	}
	return nil
}

func lstatFlags(path string) (uint32, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return 0, fmt.Errorf("cas: lstat for flags: %w", err)
	}
	return uint32(st.Flags), nil
}
