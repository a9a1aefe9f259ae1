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

func TestAdvanceIsMonotonicallyDecreasing(t *testing.T) {
	initState = EarlyInit
	defer func() { initState = EarlyInit }()

	advance(RustInit)
	require.Equal(t, RustInit, State())

	// advancing "backwards" (to a higher numeric stage) must be a no-op
	advance(EarlyInit)
	require.Equal(t, RustInit, State())

	advance(Ready)
	require.Equal(t, Ready, State())
}

func TestFinishInitPublishesTranslatorAndAdvances(t *testing.T) {
	initState = EarlyInit
	translator.Store(nil)
	defer func() {
		initState = EarlyInit
		translator.Store(nil)
	}()

	finishInit(&Translator{VFSPrefix: "/vrift", ProjectRoot: "/home/project"})

	require.Equal(t, Ready, State())
	require.NotNil(t, current())
	require.Equal(t, "/vrift", current().VFSPrefix)
}
