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
	"os"
	"strings"
	"sync/atomic"

	"github.com/mfinelli/vrift/internal/pathutil"
)

// Translator rewrites a path under VFSPrefix onto the corresponding
// path under ProjectRoot. Translation is pure prefix substitution, so
// one small immutable struct suffices in place of a rewrite map.
type Translator struct {
	VFSPrefix   string
	ProjectRoot string
}

var translator atomic.Pointer[Translator]

// publishTranslator atomically swaps in a new Translator; config reload
// never blocks a proxy call that's reading the current one.
func publishTranslator(t *Translator) {
	translator.Store(t)
}

// current returns the active Translator, or nil if the shim hasn't
// reached Ready yet.
func current() *Translator {
	return translator.Load()
}

// Translate rewrites p if it falls under t.VFSPrefix, returning the
// real filesystem path and true. Paths outside the prefix are returned
// unchanged with false, telling proxies to pass them straight through.
//
// Two inputs differing only by "..", ".", or repeated separators
// normalize to the same translated path, matching the manifest's own
// key normalization (pathutil.Normalize) so a shim-side stat and a
// daemon-side manifest lookup agree on identity.
func (t *Translator) Translate(p string) (string, bool) {
	if t == nil || t.VFSPrefix == "" {
		return p, false
	}

	if p != t.VFSPrefix && !strings.HasPrefix(p, t.VFSPrefix+"/") {
		return p, false
	}

	rel := strings.TrimPrefix(p, t.VFSPrefix)
	rel = pathutil.Normalize(rel)
	return pathutil.WithPrefix(t.ProjectRoot, rel), true
}

// RelPath strips t.VFSPrefix from p and normalizes it into the
// canonical manifest-key form, for callers (the RPC client) that need
// to address the daemon by project-relative path rather than a real
// filesystem path.
func (t *Translator) RelPath(p string) (string, bool) {
	if t == nil || t.VFSPrefix == "" {
		return "", false
	}
	if p != t.VFSPrefix && !strings.HasPrefix(p, t.VFSPrefix+"/") {
		return "", false
	}
	return pathutil.Normalize(strings.TrimPrefix(p, t.VFSPrefix)), true
}

// initEnv reads VRIFT_VFS_PREFIX and VRIFT_PROJECT_ROOT and, if both
// are set, publishes a Translator and advances to Ready. Called once
// from earlyInit.
func initEnv() {
	prefix := os.Getenv("VRIFT_VFS_PREFIX")
	root := os.Getenv("VRIFT_PROJECT_ROOT")
	if prefix == "" || root == "" {
		return
	}
	finishInit(&Translator{VFSPrefix: prefix, ProjectRoot: root})
}
