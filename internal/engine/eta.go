package engine

import "time"

// durationWindow keeps a moving average over the last n item durations.
type durationWindow struct {
	size    int
	samples []time.Duration
}

func newDurationWindow(size int) *durationWindow {
	if size < 1 {
		size = 1
	}

	return &durationWindow{size: size}
}

func (w *durationWindow) add(d time.Duration) {
	w.samples = append(w.samples, d)
	if len(w.samples) > w.size {
		w.samples = w.samples[len(w.samples)-w.size:]
	}
}

func (w *durationWindow) average() (time.Duration, bool) {
	if len(w.samples) == 0 {
		return 0, false
	}

	var sum time.Duration
	for _, d := range w.samples {
		sum += d
	}

	return sum / time.Duration(len(w.samples)), true
}

// estimate returns the time left for remaining items spread over parallel
// workers.
func (w *durationWindow) estimate(remaining, parallel int) (time.Duration, bool) {
	avg, ok := w.average()
	if !ok {
		return 0, false
	}

	if remaining <= 0 {
		return 0, true
	}

	if parallel < 1 {
		parallel = 1
	}

	batches := (remaining + parallel - 1) / parallel
	return avg * time.Duration(batches), true
}
