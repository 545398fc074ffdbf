package bulk

import (
	"math/rand"
	"sync"
	"time"
)

// Jitter added on top of a fixed per-item delay, so even an explicit delay
// never produces a perfectly periodic signature.
const (
	fixedJitterMin = 1 * time.Second
	fixedJitterMax = 6 * time.Second
)

// pacer computes the wait before the (index+1)-th unit of a run.
//
// Index 0 never waits. With a fixed delay the wait is fixed+jitter; without
// one the wait follows a stepped base that grows with the cumulative unit
// count (an anti-detection backoff, not a retry backoff) scaled by a uniform
// multiplier in [0.5, 1.5).
type pacer struct {
	fixed     time.Duration // 0 selects adaptive mode
	jitterMin time.Duration
	jitterMax time.Duration
	rng       *lockedRand
}

func newPacer(fixed time.Duration, rng *lockedRand) *pacer {
	return &pacer{
		fixed:     fixed,
		jitterMin: fixedJitterMin,
		jitterMax: fixedJitterMax,
		rng:       rng,
	}
}

// delay is pure given (index, done) apart from the random draw, and never
// returns a negative duration.
func (p *pacer) delay(index, done int) time.Duration {
	if index <= 0 {
		return 0
	}
	if p.fixed > 0 {
		return p.fixed + p.jitter()
	}
	base := adaptiveBase(done)
	mult := 0.5 + p.rng.Float64()
	d := time.Duration(float64(base) * mult)
	if d < 0 {
		d = 0
	}
	return d
}

func (p *pacer) jitter() time.Duration {
	span := p.jitterMax - p.jitterMin
	if span <= 0 {
		return p.jitterMin
	}
	return p.jitterMin + time.Duration(p.rng.Int63n(int64(span)))
}

// adaptiveBase steps up as the cumulative count crosses 10/20/30, keeping
// the expected delay monotonically non-decreasing across a long run.
func adaptiveBase(done int) time.Duration {
	switch {
	case done > 30:
		return 8 * time.Second
	case done > 20:
		return 6 * time.Second
	case done > 10:
		return 4 * time.Second
	default:
		return 2 * time.Second
	}
}

// lockedRand is a seedable random source shared by the pacer and the
// variator. Seeding it makes variation choices and delay draws reproducible
// in tests.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

func (l *lockedRand) Int63n(n int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Int63n(n)
}
