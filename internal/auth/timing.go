package auth

import (
	"crypto/rand"
	"math/big"
	"time"
)

// TimingConfig controls the response-time floor applied to denied requests.
type TimingConfig struct {
	MinResponseMs int // floor for the total handling time of a denial
	JitterMs      int // random extension added on top of the floor
}

// ResponseEqualizer pads denial paths so that cheap denials (unknown
// identifier, blocked address) take as long as expensive ones (bcrypt
// comparison). Allowed requests are never padded.
type ResponseEqualizer struct {
	config TimingConfig
}

// NewResponseEqualizer creates a ResponseEqualizer with the given config.
func NewResponseEqualizer(config TimingConfig) *ResponseEqualizer {
	return &ResponseEqualizer{config: config}
}

// jitter draws a uniform duration in [0, JitterMs) milliseconds. Uses
// crypto/rand so the pad itself leaks nothing predictable.
func (e *ResponseEqualizer) jitter() time.Duration {
	if e.config.JitterMs <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(e.config.JitterMs)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64()) * time.Millisecond
}

// Equalize sleeps until at least MinResponseMs (plus jitter) has elapsed since
// start. A denial that already took longer than the floor is not extended
// beyond the jitter draw.
func (e *ResponseEqualizer) Equalize(start time.Time) {
	target := time.Duration(e.config.MinResponseMs)*time.Millisecond + e.jitter()

	elapsed := time.Since(start)
	if elapsed < target {
		time.Sleep(target - elapsed)
	}
}
