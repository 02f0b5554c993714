package experiment

import (
	"fmt"

	"github.com/samuelfneumann/goddpg/agent"
	env "github.com/samuelfneumann/goddpg/environment"
	"github.com/samuelfneumann/goddpg/experiment/checkpointer"
	"github.com/samuelfneumann/goddpg/experiment/tracker"
	ts "github.com/samuelfneumann/goddpg/timestep"
)

// Online is an Experiment that runs an agent online only. No offline
// evaluation is performed.
//
// If the agent maintains target networks, they are moved toward the
// trained networks every syncInterval environmental steps.
type Online struct {
	env.Environment
	agent.Agent
	maxSteps      uint
	currentSteps  uint
	syncInterval  uint
	trackers      []tracker.Tracker
	checkpointers []checkpointer.Checkpointer
}

// NewOnline creates and returns a new online experiment on a given
// environment with a given agent. The steps parameter determines how
// many timesteps the experiment is run for, and the syncInterval
// parameter determines the number of environmental steps between
// target network updates for agents that maintain target networks.
// The t parameter is a slice of tracker.Tracker which determine what
// data is saved.
func NewOnline(e env.Environment, a agent.Agent, steps, syncInterval uint,
	t []tracker.Tracker, c []checkpointer.Checkpointer) *Online {
	return &Online{e, a, steps, 0, syncInterval, t, c}
}

// Register registers a tracker.Tracker with an Experiment so that data
// generated during the experiment can be tracked and saved
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// RunEpisode runs a single episode of the experiment
func (o *Online) RunEpisode() bool {
	step := o.Environment.Reset()
	if err := o.Agent.ObserveFirst(step); err != nil {
		panic(fmt.Sprintf("runepisode: %v", err))
	}
	o.track(step)

	// Run the next timestep
	for !step.Last() && o.currentSteps < o.maxSteps {
		o.currentSteps++

		// Select action, step in environment
		action := o.Agent.SelectAction(step)
		step, _ = o.Environment.Step(action)

		// Cache the environment step in each Tracker
		o.track(step)
		o.checkpoint(step)

		// Observe the timestep and step the agent
		if err := o.Agent.Observe(action, step); err != nil {
			panic(fmt.Sprintf("runepisode: %v", err))
		}
		if err := o.Agent.Step(); err != nil {
			panic(fmt.Sprintf("runepisode: %v", err))
		}

		// Periodically move target networks toward the trained
		// networks
		if o.syncInterval > 0 && o.currentSteps%o.syncInterval == 0 {
			if updater, ok := o.Agent.(agent.TargetUpdater); ok {
				if err := updater.PolyakUpdate(); err != nil {
					panic(fmt.Sprintf("runepisode: %v", err))
				}
			}
		}
	}
	o.Agent.EndEpisode()

	// Return whether or not the max timestep limit has been reached
	return o.currentSteps >= o.maxSteps
}

// Run runs the entire experiment for all timesteps
func (o *Online) Run() {
	ended := false

	for !ended {
		ended = o.RunEpisode()
	}
}

// Save saves all the data cached by the Trackers to disk
func (o *Online) Save() {
	for _, t := range o.trackers {
		t.Save()
	}
}

// track tracks the current timestep by caching its data in each Tracker
func (o *Online) track(t ts.TimeStep) {
	for _, tracker := range o.trackers {
		tracker.Track(t)
	}
}

// checkpoint saves the current state of all agents
func (o *Online) checkpoint(t ts.TimeStep) {
	for _, c := range o.checkpointers {
		if err := c.Checkpoint(t); err != nil {
			panic(fmt.Sprintf("checkpoint: %v", err))
		}
	}
}
