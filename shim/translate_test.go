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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTranslateUnderPrefix(t *testing.T) {
	tr := &Translator{VFSPrefix: "/vrift", ProjectRoot: "/home/project"}

	real, ok := tr.Translate("/vrift/src/main.go")
	require.True(t, ok)
	require.Equal(t, "/home/project/src/main.go", real)
}

func TestTranslateExactPrefix(t *testing.T) {
	tr := &Translator{VFSPrefix: "/vrift", ProjectRoot: "/home/project"}

	real, ok := tr.Translate("/vrift")
	require.True(t, ok)
	require.Equal(t, "/home/project", real)
}

func TestTranslateOutsidePrefix(t *testing.T) {
	tr := &Translator{VFSPrefix: "/vrift", ProjectRoot: "/home/project"}

	real, ok := tr.Translate("/other/path")
	require.False(t, ok)
	require.Equal(t, "/other/path", real)
}

func TestTranslateRejectsSiblingWithSharedPrefix(t *testing.T) {
	tr := &Translator{VFSPrefix: "/vrift", ProjectRoot: "/home/project"}

	// "/vrift-other" shares a string prefix with "/vrift" but isn't
	// actually under it.
	_, ok := tr.Translate("/vrift-other/file")
	require.False(t, ok)
}

func TestTranslateNilReceiver(t *testing.T) {
	var tr *Translator
	real, ok := tr.Translate("/vrift/file")
	require.False(t, ok)
	require.Equal(t, "/vrift/file", real)
}

func TestRelPath(t *testing.T) {
	tr := &Translator{VFSPrefix: "/vrift", ProjectRoot: "/home/project"}

	rel, ok := tr.RelPath("/vrift/src/main.go")
	require.True(t, ok)
	require.Equal(t, "src/main.go", rel)
}

func TestTranslateNormalizesDotDot(t *testing.T) {
	tr := &Translator{VFSPrefix: "/vrift", ProjectRoot: "/home/project"}

	a, ok := tr.Translate("/vrift/src/../src/main.go")
	require.True(t, ok)
	b, ok := tr.Translate("/vrift/src/main.go")
	require.True(t, ok)
	require.Equal(t, b, a)
}
