package vision

// MonotonicProgress wraps a progress callback with a high-water mark so
// the reported percentage never regresses, regardless of the order the
// transport delivers progress events in.
func MonotonicProgress(fn ProgressFunc) ProgressFunc {
	highWater := 0
	return func(status string, percent int) {
		if percent > 100 {
			percent = 100
		}
		if percent < highWater {
			percent = highWater
		} else {
			highWater = percent
		}
		fn(status, percent)
	}
}
