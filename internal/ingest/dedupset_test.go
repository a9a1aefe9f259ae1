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

package ingest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mfinelli/vrift/internal/digest"
)

func TestDedupSetAddIfAbsent(t *testing.T) {
	s := newDedupSet()
	d := digest.Hash([]byte("x"))

	require.False(t, s.addIfAbsent(d))
	require.True(t, s.addIfAbsent(d))
}

func TestDedupSetConcurrentAdds(t *testing.T) {
	s := newDedupSet()
	d := digest.Hash([]byte("contended"))

	var wg sync.WaitGroup
	results := make([]bool, 100)
	for i := 0; i < 100; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.addIfAbsent(d)
		}()
	}
	wg.Wait()

	seenCount := 0
	for _, r := range results {
		if r {
			seenCount++
		}
	}
	require.Equal(t, 99, seenCount)
}
