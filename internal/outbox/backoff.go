package outbox

import "time"

// Backoff computes the delay before retry number attempts (1-based).
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func (b Backoff) Delay(attempts int) time.Duration {
	if attempts <= 0 || b.Initial <= 0 {
		return 0
	}

	mult := b.Multiplier
	if mult < 1 {
		mult = 2
	}

	delay := float64(b.Initial)
	for i := 1; i < attempts; i++ {
		delay *= mult
		if b.Max > 0 && delay >= float64(b.Max) {
			return b.Max
		}
	}

	return time.Duration(delay)
}
