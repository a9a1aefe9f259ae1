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
	"io"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// cowStagingDir is where CoW staging files are created; a process-wide
// constant rather than per-process subdirectory keeps the sweeper's job
// (deleting files older than a threshold) a single directory scan.
const cowStagingDir = "/tmp"

// NeedsCoW reports whether flags requesting write access on an existing
// file should trigger break-before-write: O_WRONLY/O_RDWR/O_TRUNC
// against a path whose inode is immutable (CAS-linked).
func NeedsCoW(flags int, path string) bool {
	if flags&(os.O_WRONLY|os.O_RDWR|os.O_TRUNC) == 0 {
		return false
	}
	return isImmutable(path)
}

// isImmutable reports whether path's inode carries the filesystem
// immutable flag, the signal that it's still hardlinked to its CAS
// blob. A stat failure (e.g. the path doesn't exist yet) means there's
// nothing to break.
func isImmutable(path string) bool {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false
	}

	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return false
	}
	defer unix.Close(fd)

	attr, err := unix.IoctlGetInt(fd, unix.FS_IOC_GETFLAGS)
	if err != nil {
		return false
	}
	return attr&unix.FS_IMMUTABLE_FL != 0
}

// BreakBeforeWrite performs the five-step break-before-write procedure
// of the CoW engine and returns a raw file descriptor open on the new,
// private inode at path, honoring the caller's original open(2) flags
// and mode (minus O_CREAT/O_EXCL, which no longer apply: the rename
// already guarantees the path exists). The caller's subsequent
// reads/writes against the returned descriptor need no further
// interposition -- the rename already severed the hardlink to the CAS
// blob (K2), and every reader of path after this point sees the staged
// content (K3).
func BreakBeforeWrite(path string, flags int, mode uint32) (int, error) {
	staging := fmt.Sprintf("%s/vrift_cow_%s.tmp", cowStagingDir, uuid.NewString())

	if err := copyPreservingHoles(path, staging); err != nil {
		_ = os.Remove(staging)
		return -1, fmt.Errorf("shim: cow copy: %w", err)
	}

	if err := clearImmutableBestEffort(staging); err != nil {
		_ = os.Remove(staging)
		return -1, fmt.Errorf("shim: cow clear immutable: %w", err)
	}

	if err := unix.Rename(staging, path); err != nil {
		_ = os.Remove(staging)
		return -1, fmt.Errorf("shim: cow rename: %w", err)
	}

	reopenFlags := flags &^ (unix.O_CREAT | unix.O_EXCL)
	fd, err := unix.Open(path, reopenFlags, mode)
	if err != nil {
		return -1, fmt.Errorf("shim: cow reopen: %w", err)
	}
	return fd, nil
}

// copyPreservingHoles streams src's bytes into a newly created dst,
// skipping over sparse holes with Lseek(SEEK_DATA/SEEK_HOLE) where the
// underlying filesystem supports them, falling back to a plain
// streaming copy otherwise.
func copyPreservingHoles(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if !copySparse(in, out, info.Size()) {
		if _, err := in.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if _, err := out.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if err := out.Truncate(0); err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			return err
		}
	}

	return out.Sync()
}

// copySparse attempts a hole-preserving copy using SEEK_DATA/SEEK_HOLE.
// It returns false if the underlying filesystem doesn't support those
// seek whences (before writing anything) or if the copy fails partway
// (possibly after writing some data), letting the caller redo a plain
// copy from the start.
func copySparse(in, out *os.File, size int64) bool {
	fd := int(in.Fd())

	if _, err := unix.Seek(fd, 0, unix.SEEK_DATA); err != nil {
		return false
	}
	if _, err := unix.Seek(fd, 0, unix.SEEK_SET); err != nil {
		return false
	}

	var pos int64
	buf := make([]byte, 1<<20)

	for pos < size {
		dataStart, err := unix.Seek(fd, pos, unix.SEEK_DATA)
		if err != nil {
			// ENXIO means no more data -- the rest is a trailing hole.
			break
		}

		holeStart, err := unix.Seek(fd, dataStart, unix.SEEK_HOLE)
		if err != nil {
			holeStart = size
		}

		if _, err := in.Seek(dataStart, io.SeekStart); err != nil {
			return false
		}
		if _, err := out.Seek(dataStart, io.SeekStart); err != nil {
			return false
		}

		remaining := holeStart - dataStart
		for remaining > 0 {
			n := int64(len(buf))
			if remaining < n {
				n = remaining
			}
			read, rerr := in.Read(buf[:n])
			if read > 0 {
				if _, werr := out.Write(buf[:read]); werr != nil {
					return false
				}
			}
			if rerr != nil && rerr != io.EOF {
				return false
			}
			remaining -= int64(read)
			if rerr == io.EOF {
				break
			}
		}

		pos = holeStart
	}

	return out.Truncate(size) == nil
}

// clearImmutableBestEffort clears the immutable flag on a freshly
// created staging file. A newly created regular file is never
// immutable in practice, but this guards against an inherited flag on
// filesystems that copy extended attributes on create.
func clearImmutableBestEffort(path string) error {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil
	}
	defer unix.Close(fd)

	attr, err := unix.IoctlGetInt(fd, unix.FS_IOC_GETFLAGS)
	if err != nil {
		return nil
	}
	if attr&unix.FS_IMMUTABLE_FL == 0 {
		return nil
	}
	return unix.IoctlSetInt(fd, unix.FS_IOC_SETFLAGS, attr&^unix.FS_IMMUTABLE_FL)
}
