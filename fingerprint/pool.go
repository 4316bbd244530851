package fingerprint

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
)

// Pool hands out profiles. The catalog is fixed at construction; the only
// mutable state is the round-robin cursor. Safe for concurrent use.
type Pool struct {
	profiles []Profile
	byClass  map[DeviceClass][]int
	cursor   atomic.Uint64
	intn     func(n int) int
}

// Option configures New.
type Option func(*Pool)

// WithProfiles replaces the default catalog.
func WithProfiles(ps []Profile) Option {
	return func(p *Pool) { p.profiles = append([]Profile(nil), ps...) }
}

// WithSeed makes Random and ByDeviceClass reproducible.
func WithSeed(seed uint64) Option {
	return func(p *Pool) {
		var mu sync.Mutex
		r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		p.intn = func(n int) int {
			mu.Lock()
			defer mu.Unlock()
			return r.IntN(n)
		}
	}
}

// New builds a pool over the default catalog. Every profile is validated.
func New(opts ...Option) (*Pool, error) {
	p := &Pool{profiles: Catalog(), intn: rand.IntN}
	for _, o := range opts {
		o(p)
	}
	if len(p.profiles) == 0 {
		return nil, errors.New("fingerprint: empty catalog")
	}
	p.byClass = make(map[DeviceClass][]int)
	for i, pr := range p.profiles {
		if err := pr.Validate(); err != nil {
			return nil, fmt.Errorf("fingerprint: new pool: %w", err)
		}
		p.byClass[pr.DeviceClass] = append(p.byClass[pr.DeviceClass], i)
	}
	return p, nil
}

// Len returns the number of profiles.
func (p *Pool) Len() int { return len(p.profiles) }

// All returns a copy of the catalog in rotation order.
func (p *Pool) All() []Profile {
	return append([]Profile(nil), p.profiles...)
}

// Next returns profiles in strict rotation: over any n*Len() consecutive
// calls every profile is returned exactly n times.
func (p *Pool) Next() Profile {
	i := p.cursor.Add(1) - 1
	return p.profiles[i%uint64(len(p.profiles))]
}

// Random returns a uniformly random profile.
func (p *Pool) Random() Profile {
	return p.profiles[p.intn(len(p.profiles))]
}

// ByDeviceClass returns a random profile of class c, or Random() when the
// pool holds none of that class.
func (p *Pool) ByDeviceClass(c DeviceClass) Profile {
	idx := p.byClass[c]
	if len(idx) == 0 {
		return p.Random()
	}
	return p.profiles[idx[p.intn(len(idx))]]
}
