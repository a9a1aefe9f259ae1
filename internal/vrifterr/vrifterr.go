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

// Package vrifterr defines the semantic error taxonomy shared by every core
// component, so callers can branch on errors.Is regardless of which layer
// (CAS, manifest, daemon, shim) produced them.
package vrifterr

import "errors"

var (
	// ErrNotFound means a path is absent from a manifest, or a blob is
	// absent from the CAS.
	ErrNotFound = errors.New("vrift: not found")

	// ErrAlreadyExists means a blob was committed concurrently by another
	// writer. Callers of Store.Put* treat this as success, not failure.
	ErrAlreadyExists = errors.New("vrift: already exists")

	// ErrPermissionDenied wraps a kernel EACCES/EPERM.
	ErrPermissionDenied = errors.New("vrift: permission denied")

	// ErrIO is a generic, unclassified I/O failure.
	ErrIO = errors.New("vrift: i/o error")

	// ErrCrossDevice means a rename crossed a filesystem boundary.
	// Store.PutRename returns it instead of falling back to a stream copy
	// (Store.PutHardlink does fall back internally and never returns it).
	ErrCrossDevice = errors.New("vrift: cross-device link")

	// ErrCorruption means a hash mismatch or manifest checksum failure was
	// detected.
	ErrCorruption = errors.New("vrift: corruption detected")

	// ErrBusy means the daemon or a shared resource was unavailable;
	// the shim increments its circuit breaker on this error.
	ErrBusy = errors.New("vrift: busy")

	// ErrNotSupported means the platform lacks a required primitive (for
	// example, the immutable file-flag ioctl). Operations degrade rather
	// than fail outright when they see this error.
	ErrNotSupported = errors.New("vrift: not supported")
)

// ExitCode maps an error to the coarse exit-code categories consumed by the
// external CLI collaborator (§6): 0 success, 1 user error, 2 I/O error,
// 3 integrity error.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrCorruption):
		return 3
	case errors.Is(err, ErrIO), errors.Is(err, ErrBusy), errors.Is(err, ErrCrossDevice):
		return 2
	default:
		return 1
	}
}
