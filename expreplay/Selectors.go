package expreplay

import (
	"math/rand"

	"github.com/samuelfneumann/goddpg/utils/intutils"
)

// SelectorType describes a method of selecting data from an experience
// replay buffer
type SelectorType string

// Available SelectorTypes
const (
	Uniform SelectorType = "Uniform"
	Fifo    SelectorType = "Fifo"
)

// CreateSelector is a factory method for creating a Selector
func CreateSelector(t SelectorType, batchSize int, seed int64) Selector {
	switch t {
	case Fifo:
		return NewFifoSelector(batchSize)
	default:
		return NewUniformSelector(batchSize, seed)
	}
}

// Selector implements functionality for choosing how data should be
// sampled from an experience replay buffer
type Selector interface {
	// choose selects the indices at which data should be sampled from
	// the experience replay buffer
	choose(c *cache) []int

	// BatchSize returns the number of elements that will be selected
	BatchSize() int
}

// uniformSelector is a Selector which selects data from an experience
// replay buffer uniformly randomly with replacement
type uniformSelector struct {
	samples int
	rng     *rand.Rand
}

// NewUniformSelector returns a new Selector which selects data uniformly
// randomly from an experience replay buffer
func NewUniformSelector(samples int, seed int64) Selector {
	source := rand.NewSource(seed)
	rng := rand.New(source)

	return &uniformSelector{samples: samples, rng: rng}
}

// BatchSize gets the number of samples in a batch drawn from the buffer
func (u *uniformSelector) BatchSize() int {
	return u.samples
}

// choose selects a number of indices at which to draw data from the
// buffer. Indices are drawn with replacement, so a single transition
// may appear more than once in a batch.
func (u *uniformSelector) choose(c *cache) []int {
	selected := make([]int, u.BatchSize())

	for i := 0; i < u.BatchSize(); i++ {
		selected[i] = u.rng.Intn(c.Capacity())
	}

	return selected
}

// fifoSelector is a Selector which selects data from an experience
// replay buffer as first-in-first-out.
type fifoSelector struct {
	samples int
}

// NewFifoSelector returns a new Selector which draws the oldest data
// from an experience replay buffer first.
func NewFifoSelector(samples int) Selector {
	return &fifoSelector{samples: samples}
}

// BatchSize gets the number of samples in a batch drawn from the buffer
func (f *fifoSelector) BatchSize() int {
	return f.samples
}

// choose selects a number of indices at which to draw data from the
// buffer, oldest data first
func (f *fifoSelector) choose(c *cache) []int {
	size := intutils.Min(f.BatchSize(), c.Capacity())
	selected := make([]int, size)

	oldest := c.oldest()
	for i := 0; i < size; i++ {
		selected[i] = (oldest + i) % c.MaxCapacity()
	}

	return selected
}
