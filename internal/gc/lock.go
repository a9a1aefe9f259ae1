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

package gc

import (
	"errors"
	"fmt"
	"os"

	"github.com/mfinelli/vrift/internal/vrifterr"
)

// RegistryLock is an advisory, process-exclusive lock held for a whole
// GC run (mark, optional prune and sweep), so two GC runs never mark the
// same registry concurrently and race each other's sweep decisions.
type RegistryLock struct {
	f *os.File
}

// AcquireRegistryLock opens (creating if absent) the lock file at path
// and takes an exclusive, non-blocking flock on it.
func AcquireRegistryLock(path string) (*RegistryLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("gc: open lock file: %w", err)
	}

	if err := flock(f.Fd(), true); err != nil {
		if errors.Is(err, vrifterr.ErrNotSupported) {
			// No flock on this platform: run without mutual exclusion.
			return &RegistryLock{f: f}, nil
		}
		f.Close()
		return nil, fmt.Errorf("gc: acquire lock (another gc run in progress?): %w", err)
	}

	return &RegistryLock{f: f}, nil
}

// Release unlocks and closes the lock file.
func (l *RegistryLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = unflock(l.f.Fd())
	return l.f.Close()
}
