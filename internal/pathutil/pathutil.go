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

// Package pathutil holds the handful of path manipulations shared by the
// manifest, ingest, watcher and shim: normalizing a path into a canonical
// manifest key, and testing containment without the false positives of a
// raw string-prefix check.
package pathutil

import (
	"path"
	"path/filepath"
	"strings"
)

// Normalize turns an arbitrary filesystem path into the canonical,
// forward-slash, leading-slash-free form used as a manifest key (§3 "keys
// use forward slashes and are relative to project root; leading slash
// forbidden"). Two inputs differing only by "..", ".", or repeated
// separators normalize to the same key (§8 boundary behavior).
func Normalize(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(p, "/")
	cleaned := path.Clean(p)
	if cleaned == "." {
		return ""
	}
	return cleaned
}

// IsUnderDir reports whether path resides within dir, without the false
// positives a raw strings.HasPrefix check produces for sibling directories
// that share a prefix (e.g. "/foo/bar-baz" vs "/foo/bar").
//
// Both arguments are made absolute first. The function does not resolve
// symlinks; callers that need symlink-aware containment should run both
// paths through filepath.EvalSymlinks first.
func IsUnderDir(p, dir string) (bool, error) {
	ap, err := filepath.Abs(p)
	if err != nil {
		return false, err
	}

	ad, err := filepath.Abs(dir)
	if err != nil {
		return false, err
	}

	rel, err := filepath.Rel(ad, ap)
	if err != nil {
		return false, err
	}

	if rel == "." {
		return true, nil
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false, nil
	}

	if filepath.IsAbs(rel) {
		return false, nil
	}

	return true, nil
}

// WithPrefix joins a VFS prefix and a canonical relative path back into an
// absolute path, the inverse of stripping prefix+Normalize.
func WithPrefix(prefix, rel string) string {
	if rel == "" {
		return prefix
	}
	return filepath.Join(prefix, filepath.FromSlash(rel))
}
