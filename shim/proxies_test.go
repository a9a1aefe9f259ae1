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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePathPassthroughBeforeReady(t *testing.T) {
	initState = EarlyInit
	defer func() { initState = EarlyInit }()

	require.Equal(t, "/vrift/main.go", ResolvePath("/vrift/main.go"))
	require.Equal(t, "/vrift/main.go", ResolveForOpen("/vrift/main.go"))
}

func TestGetcwdPassthroughBeforeReady(t *testing.T) {
	initState = EarlyInit
	defer func() { initState = EarlyInit }()

	real, err := os.Getwd()
	require.NoError(t, err)

	cwd, err := Getcwd()
	require.NoError(t, err)
	require.Equal(t, real, cwd)
}

func TestGetcwdTranslatesUnderProjectRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir("/") })

	initState = EarlyInit
	translator.Store(nil)
	defer func() {
		initState = EarlyInit
		translator.Store(nil)
	}()

	finishInit(&Translator{VFSPrefix: "/vrift", ProjectRoot: dir})

	cwd, err := Getcwd()
	require.NoError(t, err)
	require.Equal(t, "/vrift", cwd)
}

func TestGetcwdLeavesUnrelatedDirUntouched(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir("/") })

	initState = EarlyInit
	translator.Store(nil)
	defer func() {
		initState = EarlyInit
		translator.Store(nil)
	}()

	finishInit(&Translator{VFSPrefix: "/vrift", ProjectRoot: "/some/other/root"})

	cwd, err := Getcwd()
	require.NoError(t, err)
	require.Equal(t, dir, cwd)
}

func TestFGetPathTranslatesOpenFD(t *testing.T) {
	dir := t.TempDir()
	fpath := dir + "/hello.txt"
	require.NoError(t, os.WriteFile(fpath, []byte("hi"), 0o644))

	f, err := os.Open(fpath)
	require.NoError(t, err)
	defer f.Close()

	initState = EarlyInit
	translator.Store(nil)
	defer func() {
		initState = EarlyInit
		translator.Store(nil)
	}()

	finishInit(&Translator{VFSPrefix: "/vrift", ProjectRoot: dir})

	resolved, err := FGetPath(int(f.Fd()))
	require.NoError(t, err)
	require.Equal(t, "/vrift/hello.txt", resolved)
}
