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

package pathutil_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mfinelli/vrift/internal/pathutil"
)

func TestNormalizeEquivalences(t *testing.T) {
	cases := []struct{ a, b string }{
		{"foo/bar", "/foo/bar"},
		{"foo//bar", "foo/bar"},
		{"./foo/bar", "foo/bar"},
		{"foo/./bar", "foo/bar"},
		{"foo/baz/../bar", "foo/bar"},
	}
	for _, c := range cases {
		require.Equal(t, pathutil.Normalize(c.a), pathutil.Normalize(c.b), "%s vs %s", c.a, c.b)
	}
}

func TestNormalizeRoot(t *testing.T) {
	require.Equal(t, "", pathutil.Normalize("."))
	require.Equal(t, "", pathutil.Normalize("/"))
}

func TestNormalizeCaseSensitive(t *testing.T) {
	require.NotEqual(t, pathutil.Normalize("Foo"), pathutil.Normalize("foo"))
}

func TestIsUnderDir(t *testing.T) {
	ok, err := pathutil.IsUnderDir("/foo/bar/baz", "/foo/bar")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = pathutil.IsUnderDir("/foo/bar-baz", "/foo/bar")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = pathutil.IsUnderDir("/foo/bar", "/foo/bar")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = pathutil.IsUnderDir("/foo", "/foo/bar")
	require.NoError(t, err)
	require.False(t, ok)
}
