package checkpointer

import (
	ts "github.com/samuelfneumann/goddpg/timestep"
)

// Serializable is an object whose state can be persisted to files
// beginning with a path prefix
type Serializable interface {
	Save(pathPrefix string) error
}

// Checkpointer checkpoints/saves serializable objects based on
// timestep.TimeSteps
type Checkpointer interface {
	Checkpoint(ts.TimeStep) error
}
