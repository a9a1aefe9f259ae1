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
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath is the single entry point every intercepted syscall
// proxy calls before doing anything else: "passthrough-if-init" --
// until the shim reaches Ready, or the path falls outside the
// translator's VFS prefix, the caller gets back the original path
// unchanged and should fall through to the real libc call.
//
// When a path IS under the VFS prefix, ResolvePath also pokes the
// daemon (best-effort, subject to the circuit breaker) so its content
// cache is warm by the time the real syscall runs against the
// translated path.
func ResolvePath(p string) string {
	if State() != Ready {
		return p
	}

	t := current()
	real, ok := t.Translate(p)
	if !ok {
		return p
	}

	if rel, ok := t.RelPath(p); ok {
		_, _ = statRemote(rel)
	}

	return real
}

// ResolveForOpen is like ResolvePath but also asks the daemon to warm
// its content cache for the file about to be opened, since an open is
// almost always followed by a read.
func ResolveForOpen(p string) string {
	if State() != Ready {
		return p
	}

	t := current()
	real, ok := t.Translate(p)
	if !ok {
		return p
	}

	if rel, ok := t.RelPath(p); ok {
		_, _ = openRemote(rel)
	}

	return real
}

// Getcwd resolves the process's real working directory and, if it
// falls under the translator's ProjectRoot, presents it back through
// the VFS prefix instead -- closing the gap the spec calls out where a
// naive shim only translates inbound paths and leaks the real tree via
// getcwd(2).
func Getcwd() (string, error) {
	real, err := os.Getwd()
	if err != nil {
		return "", err
	}

	if State() != Ready {
		return real, nil
	}

	t := current()
	if t == nil || t.ProjectRoot == "" {
		return real, nil
	}

	if real == t.ProjectRoot {
		return t.VFSPrefix, nil
	}

	rel, relErr := filepath.Rel(t.ProjectRoot, real)
	if relErr != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return real, nil
	}

	return filepath.Join(t.VFSPrefix, rel), nil
}

// FGetPath resolves an open file descriptor back to the path it was
// opened with, translated into VFS-prefix form. Linux has no native
// F_GETPATH (that's a Darwin fcntl command); the portable substitute is
// reading the /proc/self/fd/N symlink.
func FGetPath(fd int) (string, error) {
	link := fmt.Sprintf("/proc/self/fd/%d", fd)
	real, err := os.Readlink(link)
	if err != nil {
		return "", err
	}

	if State() != Ready {
		return real, nil
	}

	t := current()
	if t == nil || t.ProjectRoot == "" {
		return real, nil
	}

	rel, relErr := filepath.Rel(t.ProjectRoot, real)
	if relErr != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return real, nil
	}
	if rel == "." {
		return t.VFSPrefix, nil
	}

	return filepath.Join(t.VFSPrefix, rel), nil
}
