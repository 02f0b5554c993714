package main

import (
	"flag"
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/goddpg/agent"
	"github.com/samuelfneumann/goddpg/agent/nonlinear/continuous/ddpg"
	"github.com/samuelfneumann/goddpg/environment"
	"github.com/samuelfneumann/goddpg/environment/classiccontrol/pendulum"
	"github.com/samuelfneumann/goddpg/experiment"
	"github.com/samuelfneumann/goddpg/experiment/checkpointer"
	"github.com/samuelfneumann/goddpg/experiment/tracker"
	"github.com/samuelfneumann/goddpg/expreplay"
	"github.com/samuelfneumann/goddpg/initwfn"
	"github.com/samuelfneumann/goddpg/network"
	"github.com/samuelfneumann/goddpg/solver"
	"github.com/samuelfneumann/goddpg/utils/progressbar"
)

func main() {
	seed := flag.Uint64("seed", 192382, "random seed")
	steps := flag.Uint("steps", 100_000, "total environmental steps")
	episodeLength := flag.Int("episodeLength", 200,
		"maximum number of steps per episode")
	gamma := flag.Float64("gamma", 0.99, "discount factor")
	tau := flag.Float64("tau", 0.05, "Polyak averaging constant")
	sigma := flag.Float64("sigma", 0.1, "exploration noise scale")
	actorLR := flag.Float64("actorLR", 1e-4, "actor step size")
	criticLR := flag.Float64("criticLR", 1e-3, "critic step size")
	batchSize := flag.Int("batchSize", 64, "update batch size")
	replayCapacity := flag.Int("replayCapacity", 100_000,
		"maximum replay buffer capacity")
	syncInterval := flag.Uint("syncInterval", 1,
		"environmental steps between target network updates")
	hiddenSize := flag.Int("hiddenSize", 64,
		"hidden layer size of the actor and critic networks")
	savePath := flag.String("savePath", "",
		"path prefix to save the trained agent to")
	dataPath := flag.String("dataPath", "./data.bin",
		"file to save episodic returns to")
	lengthsPath := flag.String("lengthsPath", "./lengths.bin",
		"file to save episode lengths to")
	solvedReturn := flag.Float64("solvedReturn", math.NaN(),
		"average return over recent episodes at which training stops early")
	flag.Parse()

	// Create the environment
	angleBounds := r1.Interval{
		Min: -pendulum.AngleBound,
		Max: pendulum.AngleBound,
	}
	speedBounds := r1.Interval{Min: -1.0, Max: 1.0}

	starter := environment.NewUniformStarter([]r1.Interval{
		angleBounds,
		speedBounds,
	}, *seed)
	task := pendulum.NewSwingUp(starter, *episodeLength)
	env, _ := pendulum.NewContinuous(task, *gamma)

	// Create the learning algorithm
	initWFn, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		log.Fatalf("could not create weight initializer: %v", err)
	}
	actorSolver, err := solver.NewDefaultAdam(*actorLR, *batchSize)
	if err != nil {
		log.Fatalf("could not create actor solver: %v", err)
	}
	criticSolver, err := solver.NewDefaultAdam(*criticLR, *batchSize)
	if err != nil {
		log.Fatalf("could not create critic solver: %v", err)
	}

	config := ddpg.Config{
		ActorLayers:      []int{*hiddenSize, *hiddenSize},
		ActorBiases:      []bool{true, true},
		ActorActivations: []*network.Activation{network.ReLU(), network.ReLU()},

		CriticLayers:      []int{*hiddenSize, *hiddenSize},
		CriticBiases:      []bool{true, true},
		CriticActivations: []*network.Activation{network.ReLU(), network.ReLU()},

		InitWFn:      initWFn,
		ActorSolver:  actorSolver,
		CriticSolver: criticSolver,

		ExpReplay: expreplay.Config{
			SampleMethod:      expreplay.Uniform,
			SampleSize:        *batchSize,
			MaxReplayCapacity: *replayCapacity,
			MinReplayCapacity: *batchSize,
		},

		Tau:   *tau,
		Gamma: *gamma,
		Sigma: *sigma,
	}
	a, err := config.CreateAgent(env, *seed)
	if err != nil {
		log.Fatalf("could not create agent: %v", err)
	}

	// Track episodic returns and lengths, and periodically checkpoint
	// the agent
	returns := tracker.NewReturn(*dataPath)
	lengths := tracker.NewEpisodeLength(*lengthsPath)
	var checkpointers []checkpointer.Checkpointer
	if *savePath != "" {
		saver, ok := a.(agent.Saver)
		if !ok {
			log.Fatalf("agent cannot be checkpointed")
		}
		checkpointers = append(checkpointers, checkpointer.NewNStep(
			10_000,
			saver,
			checkpointer.FileTimer(*savePath, ""),
		))
	}

	// Experiment
	e := experiment.NewOnline(env, a, *steps, *syncInterval,
		[]tracker.Tracker{returns, lengths}, checkpointers)

	// Swing-up episodes always run for the full step limit, so the
	// total number of episodes is known up front
	numEpisodes := int(*steps) / *episodeLength
	bar := progressbar.NewManualProgressBar(50, numEpisodes)

	ended := false
	for !ended {
		ended = e.RunEpisode()
		bar.Increment()
		bar.Display()

		if solved(returns.(*tracker.Return).Returns(), *solvedReturn) {
			break
		}
	}
	fmt.Println()
	e.Save()

	if *savePath != "" {
		if err := a.(agent.Saver).Save(*savePath); err != nil {
			log.Fatalf("could not save trained agent: %v", err)
		}
	}

	data := tracker.LoadData(*dataPath)
	if len(data) >= 10 {
		fmt.Println(data[len(data)-10:])
	} else {
		fmt.Println(data)
	}
}

// solvedWindow is the number of most recent episodic returns averaged
// when checking the early stopping threshold
const solvedWindow = 10

// solved returns whether the average of the last solvedWindow episodic
// returns has reached the threshold. A NaN threshold never stops
// training early.
func solved(returns []float64, threshold float64) bool {
	if math.IsNaN(threshold) || len(returns) < solvedWindow {
		return false
	}

	sum := 0.0
	for _, r := range returns[len(returns)-solvedWindow:] {
		sum += r
	}
	return sum/solvedWindow >= threshold
}
