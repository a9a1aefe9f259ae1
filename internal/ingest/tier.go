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

// Tier buckets a file by size for logging/metrics only; it has no effect
// on how a file is ingested.
type Tier string

const (
	TierTiny  Tier = "tiny"  // < TierThresholds.Tiny
	TierSmall Tier = "small" // < TierThresholds.Small
	TierLarge Tier = "large" // >= TierThresholds.Small
)

// TierThresholds configures the tiny/small/large cutoffs.
type TierThresholds struct {
	Tiny  int64
	Small int64
}

// DefaultTierThresholds is used when IngestOptions.TierThresholds is
// left zero: 4KiB tiny, 1MiB small.
var DefaultTierThresholds = TierThresholds{
	Tiny:  4 << 10,
	Small: 1 << 20,
}

// Classify returns the Tier for a file of the given size.
func (t TierThresholds) Classify(size int64) Tier {
	switch {
	case size < t.Tiny:
		return TierTiny
	case size < t.Small:
		return TierSmall
	default:
		return TierLarge
	}
}
