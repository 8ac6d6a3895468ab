package market

import (
	mathrand "math/rand"
	"sync"
	"time"
)

// Rand is the single source of randomness for the engine. Float64 returns a
// uniform value in [0, 1).
type Rand interface {
	Float64() float64
}

type lockedRand struct {
	mu  sync.Mutex
	rnd *mathrand.Rand
}

func NewRand(seed int64) Rand {
	return &lockedRand{rnd: mathrand.New(mathrand.NewSource(seed))}
}

func NewTimeSeededRand() Rand {
	return NewRand(time.Now().UnixNano())
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Float64()
}

// pick maps one uniform draw onto an index in [0, n).
func pick(r Rand, n int) int {
	if n <= 0 {
		return 0
	}
	i := int(r.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

// between draws a uniform value in [lo, hi).
func between(r Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}
