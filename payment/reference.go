package payment

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"
)

// ReferenceGenerator issues transaction references that are unique within a
// session: a monotonic sequence plus a random suffix.
type ReferenceGenerator struct {
	prefix string
	seq    atomic.Uint64
}

func NewReferenceGenerator(prefix string) *ReferenceGenerator {
	return &ReferenceGenerator{prefix: prefix}
}

// Next returns references shaped like WCV-3-482910337.
func (g *ReferenceGenerator) Next() string {
	n := g.seq.Add(1)
	return fmt.Sprintf("%s-%d-%09d", g.prefix, n, rand.IntN(1_000_000_000))
}
