// Package expreplay implements experience replay buffers for
// reinforcement learning agents
package expreplay

import (
	"fmt"

	"github.com/samuelfneumann/goddpg/timestep"
)

// Config implements a specific configuration of an ExperienceReplayer
type Config struct {
	SampleMethod      SelectorType
	SampleSize        int
	MaxReplayCapacity int
	MinReplayCapacity int
}

// Create creates and returns the ExperienceReplayer with the specified
// Config.
func (c Config) Create(featureSize, actionSize int,
	seed int64) (ExperienceReplayer, error) {
	sampler := CreateSelector(c.SampleMethod, c.SampleSize, seed)

	return New(sampler, c.MinReplayCapacity, c.MaxReplayCapacity,
		featureSize, actionSize)
}

// ExperienceReplayer implements an experience replay buffer
type ExperienceReplayer interface {
	// Add adds a transition to the buffer. If the buffer is full, the
	// oldest transition in the buffer is overwritten.
	Add(t timestep.Transition) error

	// Sample samples a batch of experience from the buffer and returns
	// the batch of SARSA tuples as []float64
	Sample() ([]float64, []float64, []float64, []float64, []float64,
		[]float64, error)

	// Capacity returns the current number of samples in the buffer
	Capacity() int

	// MaxCapacity returns the maximum allowable samples in the buffer
	MaxCapacity() int

	// MinCapacity returns the number of samples required to be in
	// the buffer before the buffer can be sampled
	MinCapacity() int

	// BatchSize returns the number of samples returned by Sample()
	BatchSize() int

	// Clear removes all transitions from the buffer
	Clear()
}

// cache implements a concrete ExperienceReplayer as a circular buffer.
// Once maxCapacity transitions have been added, each new transition
// overwrites the oldest transition still in the cache.
type cache struct {
	stateCache      []float64
	actionCache     []float64
	rewardCache     []float64
	discountCache   []float64
	nextStateCache  []float64
	nextActionCache []float64

	// position is the index at which the next transition is written.
	// Once the cache has wrapped around, position is also the index of
	// the oldest transition in the cache.
	position int
	full     bool

	// Outlines how data is sampled
	sampler Selector

	minCapacity int
	maxCapacity int
	featureSize int
	actionSize  int
}

// New creates and returns a new ExperienceReplayer. The sampler
// parameter is a Selector which determines how data is sampled from
// the replay buffer. The featureSize and actionSize parameters define
// the size of the feature and action vectors.
//
// Pixel observations should be flattened before adding to the buffer.
func New(sampler Selector, minCapacity, maxCapacity, featureSize,
	actionSize int) (ExperienceReplayer, error) {
	if minCapacity <= 0 {
		return &cache{}, fmt.Errorf("new: minCapacity must be > 0")
	}
	if maxCapacity < 1 {
		return &cache{}, fmt.Errorf("new: maxCapacity must be >= 1")
	}
	if maxCapacity < sampler.BatchSize() {
		return &cache{}, fmt.Errorf("new: cannot have batch size(%v) > max "+
			"buffer capacity (%v)", sampler.BatchSize(), maxCapacity)
	}
	if minCapacity > maxCapacity {
		return &cache{}, fmt.Errorf("new: cannot have min capacity(%v) > max "+
			"capacity (%v)", minCapacity, maxCapacity)
	}

	stateCache := make([]float64, maxCapacity*featureSize)
	nextStateCache := make([]float64, maxCapacity*featureSize)

	actionCache := make([]float64, maxCapacity*actionSize)
	nextActionCache := make([]float64, maxCapacity*actionSize)

	rewardCache := make([]float64, maxCapacity)
	discountCache := make([]float64, maxCapacity)

	return &cache{
		stateCache:      stateCache,
		actionCache:     actionCache,
		rewardCache:     rewardCache,
		discountCache:   discountCache,
		nextStateCache:  nextStateCache,
		nextActionCache: nextActionCache,

		position: 0,
		full:     false,

		sampler: sampler,

		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		featureSize: featureSize,
		actionSize:  actionSize,
	}, nil
}

// String returns the string representation of the cache
func (c *cache) String() string {
	baseStr := "Capacity: %v \nStates: %v \nActions: %v \nRewards: %v " +
		"\nDiscounts: %v \nNext States: %v \nNext Actions: %v"
	return fmt.Sprintf(baseStr, c.Capacity(), c.stateCache, c.actionCache,
		c.rewardCache, c.discountCache, c.nextStateCache, c.nextActionCache)
}

// BatchSize returns the number of samples sampled using Sample() -
// a.k.a the batch size
func (c *cache) BatchSize() int {
	return c.sampler.BatchSize()
}

// oldest returns the index of the oldest transition in the cache
func (c *cache) oldest() int {
	if c.full {
		return c.position
	}
	return 0
}

// Sample samples and returns a batch of transitions from the replay
// buffer
func (c *cache) Sample() ([]float64, []float64, []float64, []float64,
	[]float64, []float64, error) {
	if c.Capacity() == 0 {
		err := &ExpReplayError{
			Op:  "sample",
			Err: errEmptyCache,
		}
		return nil, nil, nil, nil, nil, nil, err
	}
	if c.Capacity() < c.MinCapacity() {
		err := &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
		return nil, nil, nil, nil, nil, nil, err
	}

	indices := c.sampler.choose(c)

	stateBatch := make([]float64, len(indices)*c.featureSize)
	nextStateBatch := make([]float64, len(indices)*c.featureSize)
	for i, index := range indices {
		batchStartInd := i * c.featureSize
		expStartInd := index * c.featureSize
		copy(stateBatch[batchStartInd:batchStartInd+c.featureSize],
			c.stateCache[expStartInd:expStartInd+c.featureSize],
		)
		copy(nextStateBatch[batchStartInd:batchStartInd+c.featureSize],
			c.nextStateCache[expStartInd:expStartInd+c.featureSize],
		)
	}

	actionBatch := make([]float64, len(indices)*c.actionSize)
	nextActionBatch := make([]float64, len(indices)*c.actionSize)
	for i, index := range indices {
		batchStartInd := i * c.actionSize
		expStartInd := index * c.actionSize
		copy(actionBatch[batchStartInd:batchStartInd+c.actionSize],
			c.actionCache[expStartInd:expStartInd+c.actionSize],
		)
		copy(nextActionBatch[batchStartInd:batchStartInd+c.actionSize],
			c.nextActionCache[expStartInd:expStartInd+c.actionSize],
		)
	}

	rewardBatch := make([]float64, len(indices))
	discountBatch := make([]float64, len(indices))
	for i, index := range indices {
		rewardBatch[i] = c.rewardCache[index]
		discountBatch[i] = c.discountCache[index]
	}

	return stateBatch, actionBatch, rewardBatch, discountBatch,
		nextStateBatch, nextActionBatch, nil
}

// Capacity returns the current number of elements in the cache that
// are available for sampling
func (c *cache) Capacity() int {
	if c.full {
		return c.maxCapacity
	}
	return c.position
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the cache
func (c *cache) MaxCapacity() int {
	return c.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// cache before sampling is allowed
func (c *cache) MinCapacity() int {
	return c.minCapacity
}

// Clear removes all transitions from the cache. The backing memory is
// retained and overwritten by later calls to Add().
func (c *cache) Clear() {
	c.position = 0
	c.full = false
}

// Add adds a transition to the cache, overwriting the oldest
// transition when the cache is full
func (c *cache) Add(t timestep.Transition) error {
	if t.State.Len() != c.featureSize || t.NextState.Len() != c.featureSize {
		return fmt.Errorf("add: invalid feature size \n\twant(%v)\n\thave(%v)",
			c.featureSize, t.State.Len())
	}
	if t.Action.Len() != c.actionSize || t.NextAction.Len() != c.actionSize {
		return fmt.Errorf("add: invalid action size \n\twant(%v)\n\thave(%v)",
			c.actionSize, t.Action.Len())
	}

	index := c.position

	// Copy states
	stateInd := index * c.featureSize
	copy(c.stateCache[stateInd:stateInd+c.featureSize],
		t.State.RawVector().Data)
	copy(c.nextStateCache[stateInd:stateInd+c.featureSize],
		t.NextState.RawVector().Data)

	// Copy actions
	actionInd := index * c.actionSize
	copy(c.actionCache[actionInd:actionInd+c.actionSize],
		t.Action.RawVector().Data)
	copy(c.nextActionCache[actionInd:actionInd+c.actionSize],
		t.NextAction.RawVector().Data)

	c.rewardCache[index] = t.Reward
	c.discountCache[index] = t.Discount

	c.position++
	if c.position >= c.maxCapacity {
		c.position = 0
		c.full = true
	}

	return nil
}
