package tracker

import (
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	ts "github.com/samuelfneumann/goddpg/timestep"
)

func step(stepType ts.StepType, reward float64, number int) ts.TimeStep {
	obs := mat.NewVecDense(1, []float64{0.0})
	return ts.New(stepType, reward, 1.0, obs, number)
}

// TestReturn ensures that the Return Tracker accumulates one return per
// finished episode and that the saved data can be read back
func TestReturn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "returns.bin")
	r := NewReturn(path).(*Return)

	// Two episodes with returns -3 and 5
	r.Track(step(ts.First, 0.0, 0))
	r.Track(step(ts.Mid, -1.0, 1))
	r.Track(step(ts.Mid, -1.0, 2))
	r.Track(step(ts.Last, -1.0, 3))

	r.Track(step(ts.First, 0.0, 0))
	r.Track(step(ts.Last, 5.0, 1))

	returns := r.Returns()
	if len(returns) != 2 {
		t.Fatalf("number of episodic returns \n\twant(%v)\n\thave(%v)", 2,
			len(returns))
	}
	if returns[0] != -3.0 {
		t.Errorf("first episodic return \n\twant(%v)\n\thave(%v)", -3.0,
			returns[0])
	}
	if returns[1] != 5.0 {
		t.Errorf("second episodic return \n\twant(%v)\n\thave(%v)", 5.0,
			returns[1])
	}

	r.Save()
	data := LoadData(path)
	if len(data) != len(returns) {
		t.Fatalf("number of saved returns \n\twant(%v)\n\thave(%v)",
			len(returns), len(data))
	}
	for i := range returns {
		if data[i] != returns[i] {
			t.Errorf("saved return %v \n\twant(%v)\n\thave(%v)", i, returns[i],
				data[i])
		}
	}
}

// TestReturnNonSequential ensures that tracking non-sequential timesteps
// panics
func TestReturnNonSequential(t *testing.T) {
	r := NewReturn(filepath.Join(t.TempDir(), "returns.bin")).(*Return)

	defer func() {
		if recover() == nil {
			t.Error("expected a panic when tracking non-sequential timesteps")
		}
	}()

	r.Track(step(ts.First, 0.0, 0))
	r.Track(step(ts.Mid, -1.0, 2))
}

// TestEpisodeLength ensures that the EpisodeLength Tracker records one
// length per finished episode and that the saved data can be read back
func TestEpisodeLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lengths.bin")
	e := NewEpisodeLength(path).(*EpisodeLength)

	// Two episodes of lengths 2 and 1
	e.Track(step(ts.First, 0.0, 0))
	e.Track(step(ts.Mid, -1.0, 1))
	e.Track(step(ts.Last, -1.0, 2))

	e.Track(step(ts.First, 0.0, 0))
	e.Track(step(ts.Last, 1.0, 1))

	e.Save()
	data := LoadData(path)
	if len(data) != 2 {
		t.Fatalf("number of saved episode lengths \n\twant(%v)\n\thave(%v)",
			2, len(data))
	}
	if data[0] != 2.0 {
		t.Errorf("first episode length \n\twant(%v)\n\thave(%v)", 2.0, data[0])
	}
	if data[1] != 1.0 {
		t.Errorf("second episode length \n\twant(%v)\n\thave(%v)", 1.0, data[1])
	}
}
