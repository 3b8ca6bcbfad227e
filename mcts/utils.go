package mcts

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/vecf32"
)

// visits returns the visit counts of the root's children, in child order.
func (t *MCTS) visits() []float32 {
	retVal := make([]float32, len(t.root.children))
	for i, kid := range t.root.children {
		retVal[i] = float32(kid.visits)
	}
	return retVal
}

// BestMove returns the move of the most visited child of the root. Ties go to the first child.
func (t *MCTS) BestMove() (int32, error) {
	if !t.root.HasChildren() {
		return 0, ErrNoChildren
	}
	return t.root.children[argmax(t.visits())].move, nil
}

// SampleMove picks a child of the root with probability proportional to its visit count. When
// nothing has been visited yet every child is equally likely.
func (t *MCTS) SampleMove() (int32, error) {
	if !t.root.HasChildren() {
		return 0, ErrNoChildren
	}
	weights := make([]float64, len(t.root.children))
	var total float64
	for i, kid := range t.root.children {
		weights[i] = float64(kid.visits)
		total += weights[i]
	}
	if total == 0 {
		return t.root.children[t.rand.Intn(len(weights))].move, nil
	}
	idx := int(distuv.NewCategorical(weights, t.src).Rand())
	return t.root.children[idx].move, nil
}

// ChooseMove samples when the search is configured as stochastic and takes the best move otherwise.
func (t *MCTS) ChooseMove() (int32, error) {
	if t.Stochastic {
		return t.SampleMove()
	}
	return t.BestMove()
}

// Policies returns the visit distribution of the root over the whole action space. Moves that are
// illegal or were never expanded get 0.
func (t *MCTS) Policies() ([]float32, error) {
	retVal := make([]float32, t.root.state.ActionSpace())
	if !t.root.HasChildren() {
		return retVal, nil
	}
	visits := t.visits()
	sum := vecf32.Sum(visits)
	if sum == 0 {
		for i := range visits {
			visits[i] = 1
		}
		sum = float32(len(visits))
	}
	vecf32.Scale(visits, 1/sum)
	for i, kid := range t.root.children {
		if int(kid.move) >= len(retVal) {
			return nil, errors.Errorf("mcts: child move %d outside the action space %d", kid.move, len(retVal))
		}
		retVal[kid.move] = visits[i]
	}
	return retVal, nil
}

// argmax returns the index of the first maximum.
func argmax(a []float32) int {
	var retVal int
	var max = math32.Inf(-1)
	for i := range a {
		if a[i] > max {
			max = a[i]
			retVal = i
		}
	}
	return retVal
}
