package rebalancer

// Parameter bounds for the tunable range and averaging window.
const (
	MaxHalfWidthTicks = 20_000 // exclusive
	MinTwapWindowSec  = 600
	MaxTwapWindowSec  = 86_400
)

// candidateRange returns the range symmetric around a TWAP tick for the
// given half width.
func candidateRange(twapTick int64, halfWidth int32) (lower, upper int32) {
	return int32(twapTick) - halfWidth, int32(twapTick) + halfWidth
}

// tickWithin treats a range as a half-open [lower, upper) interval. While
// the TWAP tick stays inside the recorded range the candidate is considered
// overlapping and no migration happens; once the tick reaches or crosses a
// boundary the ranges have drifted apart and the position migrates.
func tickWithin(tick int64, lower, upper int32) bool {
	return tick >= int64(lower) && tick < int64(upper)
}

// twapFromCumulatives derives the TWAP tick from two cumulative tick
// samples over a window, flooring toward negative infinity the way pool
// oracles do.
func twapFromCumulatives(oldCum, newCum int64, windowSec uint32) int64 {
	delta := newCum - oldCum
	window := int64(windowSec)
	tick := delta / window
	if delta < 0 && delta%window != 0 {
		tick--
	}
	return tick
}
