package protocol

import (
	"strconv"
	"sync/atomic"
	"time"
)

// TagGenerator produces "<prefix>-<counter>" tags that are unique for the
// lifetime of the generator.
type TagGenerator struct {
	prefix  string
	counter atomic.Uint64
}

// NewTagGenerator returns a generator whose prefix is the current time in
// base-36 seconds.
func NewTagGenerator() *TagGenerator {
	return NewTagGeneratorWithPrefix(strconv.FormatInt(time.Now().Unix(), 36))
}

// NewTagGeneratorWithPrefix returns a generator with a fixed prefix.
func NewTagGeneratorWithPrefix(prefix string) *TagGenerator {
	return &TagGenerator{prefix: prefix}
}

// Prefix returns the generator prefix.
func (g *TagGenerator) Prefix() string {
	return g.prefix
}

// Next returns the next tag.
func (g *TagGenerator) Next() string {
	n := g.counter.Add(1)
	return g.prefix + "-" + strconv.FormatUint(n, 10)
}
