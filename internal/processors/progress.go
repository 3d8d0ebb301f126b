package processors

import "time"

// Progress estimates completion percentage of a fixed-latency operation.
// It never reports more than 95 so the final jump belongs to the
// completion event.
func Progress(elapsed, total time.Duration) float64 {
	if total <= 0 || elapsed <= 0 {
		return 0
	}
	p := float64(elapsed) / float64(total) * 100
	if p > 95 {
		return 95
	}
	return p
}
