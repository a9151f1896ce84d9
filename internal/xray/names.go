package xray

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"
)

// Rand is the random source used for template selection, think time and
// name seeding. *math/rand.Rand satisfies it. Implementations need not be
// safe for concurrent use; every virtual user owns one.
type Rand interface {
	Intn(n int) int
	Int63n(n int64) int64
}

// NewRand returns a Rand seeded with seed, or with the clock when seed is 0.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

const (
	suffixBits = 24
	suffixMask = 1<<suffixBits - 1

	RepoPrefix   = "perf-docker-"
	PolicyPrefix = "perf-policy-"
	WatchPrefix  = "perf-watch-"
)

// NameGenerator hands out resource names with a 6 hex digit suffix.
//
// Suffixes are a seeded permutation of a shared counter, so one generator
// never repeats a suffix within its first 2^24 names no matter how many
// goroutines call it. Two generators with different seeds produce unrelated
// sequences.
type NameGenerator struct {
	counter atomic.Uint32
	mul1    uint32
	mul2    uint32
	offset  uint32
}

// NewNameGenerator seeds a generator from r.
func NewNameGenerator(r Rand) *NameGenerator {
	return &NameGenerator{
		// Multipliers must be odd to be invertible modulo 2^24.
		mul1:   uint32(r.Int63n(1<<(suffixBits-1)))<<1 | 1,
		mul2:   uint32(r.Int63n(1<<(suffixBits-1)))<<1 | 1,
		offset: uint32(r.Int63n(1 << suffixBits)),
	}
}

// Suffix returns the next 6 character lowercase hex suffix.
func (g *NameGenerator) Suffix() string {
	n := g.counter.Add(1) - 1
	return fmt.Sprintf("%06x", g.permute(n&suffixMask))
}

// Repo returns a fresh repository key.
func (g *NameGenerator) Repo() string { return RepoPrefix + g.Suffix() }

// Policy returns a fresh policy name.
func (g *NameGenerator) Policy() string { return PolicyPrefix + g.Suffix() }

// Watch returns a fresh watch name.
func (g *NameGenerator) Watch() string { return WatchPrefix + g.Suffix() }

// permute is a bijection on [0, 2^24).
func (g *NameGenerator) permute(x uint32) uint32 {
	x = (x*g.mul1 + g.offset) & suffixMask
	x ^= x >> 12
	x = (x * g.mul2) & suffixMask
	x ^= x >> 11
	return x
}
