// Package search maps run positions onto candidate specs.
package search

import (
	"errors"
	"fmt"
	"math/bits"
	"math/rand/v2"

	"orb-lab/internal/domain"
)

// ErrGeneration is returned when a position cannot be turned into a valid spec.
// It indicates a bug or a bad search space and halts the run.
var ErrGeneration = errors.New("candidate generation failed")

// pcgStream is the fixed second PCG word; the seed picks the first.
const pcgStream = 0x9e3779b97f4a7c15

// Generator is a deterministic function position -> CandidateSpec.
// The same (space, mode, seed) always yields the same sequence.
type Generator struct {
	space domain.SearchSpace
	dims  []int
	size  uint64
	mode  domain.SearchMode
	seed  uint64

	// RANDOM: grid index = (a*p + b) mod size, a coprime with size.
	a, b uint64
}

// NewGenerator builds a generator over a validated search space.
func NewGenerator(space domain.SearchSpace, mode domain.SearchMode, seed uint64) (*Generator, error) {
	size := space.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: empty or oversized search space", ErrGeneration)
	}

	g := &Generator{
		space: space,
		dims:  space.Dims(),
		size:  size,
		mode:  mode,
		seed:  seed,
		a:     1,
	}

	switch mode {
	case domain.SearchGrid:
	case domain.SearchRandom:
		g.a, g.b = affineParams(seed, size)
	default:
		return nil, fmt.Errorf("%w: unknown search mode %q", ErrGeneration, mode)
	}
	return g, nil
}

// Size returns the number of points in the space.
func (g *Generator) Size() uint64 {
	return g.size
}

// Index returns the grid index tested at position p.
func (g *Generator) Index(p uint64) uint64 {
	if g.mode == domain.SearchGrid {
		return p
	}
	hi, lo := bits.Mul64(g.a, p%g.size)
	x := bits.Rem64(hi, lo, g.size)
	if x >= g.size-g.b {
		return x - (g.size - g.b)
	}
	return x + g.b
}

// At returns the spec at position p.
func (g *Generator) At(p uint64) (domain.CandidateSpec, error) {
	if p >= g.size {
		return domain.CandidateSpec{}, fmt.Errorf("%w: position %d outside space of %d", ErrGeneration, p, g.size)
	}
	spec, err := g.space.Spec(g.decode(g.Index(p)))
	if err != nil {
		return domain.CandidateSpec{}, fmt.Errorf("%w: position %d: %v", ErrGeneration, p, err)
	}
	return spec, nil
}

// decode splits a grid index into per-dimension indices.
// The last dimension varies fastest.
func (g *Generator) decode(index uint64) []int {
	idx := make([]int, len(g.dims))
	for d := len(g.dims) - 1; d >= 0; d-- {
		n := uint64(g.dims[d])
		idx[d] = int(index % n)
		index /= n
	}
	return idx
}

// affineParams draws a multiplier coprime with n and an offset below n.
func affineParams(seed, n uint64) (a, b uint64) {
	if n == 1 {
		return 1, 0
	}
	rng := rand.New(rand.NewPCG(seed, pcgStream))
	b = rng.Uint64N(n)
	for {
		a = 1 + rng.Uint64N(n-1)
		if gcd(a, n) == 1 {
			return a, b
		}
	}
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
