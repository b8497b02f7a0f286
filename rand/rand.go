package rand

import (
	"github.com/pkg/errors"
	"github.com/seehuhn/mt19937"
)

// A Generator uses a goroutine to pre-generate batches of random numbers from
// a Mersenne twister (mt19937-64). It carries the twister's native uint64
// words on the channel, so Uint64 satisfies the Source interface that
// math/rand/v2 and the gonum distuv samplers expect.
//
// A Generator is NOT safe for concurrent use by multiple consumers that need
// reproducible streams: give every chain its own Generator with its own seed.
type Generator struct {
	ch   chan uint64
	done chan struct{}
}

func startGenerator(r *mt19937.MT19937) *Generator {
	numChan := make(chan uint64, 1024)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case numChan <- r.Uint64():
			case <-done:
				return
			}
		}
	}()

	return &Generator{
		ch:   numChan,
		done: done,
	}
}

// NewGenerator starts a new background PRNG based on the given seed
func NewGenerator(seed int64) (*Generator, error) {
	r := mt19937.New()
	r.Seed(seed)
	return startGenerator(r), nil
}

// NewGeneratorSlice starts a new background PRNG seeded from a key slice (the
// seeding mode used by the canonical mt19937-64 test vectors)
func NewGeneratorSlice(key []uint64) (*Generator, error) {
	if len(key) < 1 {
		return nil, errors.Errorf("Invalid seed slice of len %d", len(key))
	}

	r := mt19937.New()
	r.SeedFromSlice(key)
	return startGenerator(r), nil
}

// Close stops the background goroutine. The Generator must not be used after
// Close has been called.
func (g *Generator) Close() {
	select {
	case <-g.done:
		// Already closed
	default:
		close(g.done)
	}
}

// Uint64 returns the next raw word from the twister. This is the method that
// makes a Generator usable as a rand Source for distuv.
func (g *Generator) Uint64() uint64 {
	return <-g.ch
}

// Int63 provides the same interface as Go's math/rand, but with pre-generation.
func (g *Generator) Int63() int64 {
	return int64(g.Uint64() & 0x7fffffffffffffff)
}

// Int63n is a copy of the current Go code
func (g *Generator) Int63n(n int64) int64 {
	if n <= 0 {
		panic("invalid argument to Int63n")
	}

	if n&(n-1) == 0 { // n is power of two, can mask
		return g.Int63() & (n - 1)
	}

	max := int64((1 << 63) - 1 - (1<<63)%uint64(n))
	v := g.Int63()
	for v > max {
		v = g.Int63()
	}

	return v % n
}

// Float64 uses the commented, simpler implmentation since we don't have the
// same support requirements for users
func (g *Generator) Float64() float64 {
	// See the Go lang comments for Rand Float64 implementation for details
	return float64(g.Int63n(1<<53)) / (1 << 53)
}
