package main

import (
	"math"
	"testing"
)

// TestSolved ensures that early stopping triggers only once the average
// of the most recent episodic returns reaches the threshold
func TestSolved(t *testing.T) {
	returns := make([]float64, solvedWindow)
	for i := range returns {
		returns[i] = 100.0
	}

	if !solved(returns, 100.0) {
		t.Error("threshold reached but not reported as solved")
	}
	if solved(returns, 101.0) {
		t.Error("threshold not reached but reported as solved")
	}
	if solved(returns[:solvedWindow-1], 100.0) {
		t.Error("solved reported before enough episodes have finished")
	}
	if solved(returns, math.NaN()) {
		t.Error("an unset threshold should never stop training")
	}
}
