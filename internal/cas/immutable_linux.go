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

//go:build linux

package cas

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// setImmutable sets the inode immutable attribute (FS_IMMUTABLE_FL) on
// path, enforcing B2 at the filesystem level. Not every filesystem
// supports the ioctl (tmpfs, overlayfs in some configurations); callers
// treat ENOTTY/EOPNOTSUPP as degrade-not-fail per §7.8.
func setImmutable(path string) error {
	return setFlag(path, unix.FS_IMMUTABLE_FL, true)
}

// clearImmutable removes the immutable attribute, required before GC can
// unlink a blob.
func clearImmutable(path string) error {
	return setFlag(path, unix.FS_IMMUTABLE_FL, false)
}

func setFlag(path string, flag int, enable bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cas: open for flag change: %w", err)
	}
	defer f.Close()

	cur, err := unix.IoctlGetInt(int(f.Fd()), unix.FS_IOC_GETFLAGS)
	if err != nil {
		return notSupportedIfUnsupported(err)
	}

	next := cur
	if enable {
		next |= flag
	} else {
		next &^= flag
	}
	if next == cur {
		return nil
	}

	if err := unix.IoctlSetInt(int(f.Fd()), unix.FS_IOC_SETFLAGS, next); err != nil {
		return notSupportedIfUnsupported(err)
	}
	return nil
}

func notSupportedIfUnsupported(err error) error {
	if err == unix.ENOTTY || err == unix.EOPNOTSUPP || err == unix.ENOSYS {
		return errNotSupported(err)
	}
	return fmt.Errorf("cas: immutable flag ioctl: %w", err)
}
