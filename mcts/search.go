package mcts

import (
	"context"

	"github.com/alphafour/game"
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

/*
Here lies the majority of the MCTS search code, while node.go and tree.go handle the data structure stuff.

Each simulation is the classic pipeline:
	SELECT, EXPAND and EVALUATE, BACKPROPAGATE.
Simulations run one after the other because selection reads the statistics written by every previous
simulation.
*/

// Search runs up to Simulations simulations from the current root. The context is polled before each
// simulation; cancellation stops the search early and is not reported as an error. It returns the
// number of simulations that completed.
func (t *MCTS) Search(ctx context.Context) (int, error) {
	if t.root.HasChildren() && !t.noised {
		// reused subtree: its priors have not been perturbed under this root yet
		if err := t.AddNoise(t.root); err != nil {
			return 0, err
		}
	}

	var i int
	for ; i < t.Simulations; i++ {
		select {
		case <-ctx.Done():
			t.logger.Debug().Int("simulations", i).Msg("search cancelled")
			return i, nil
		default:
		}
		if err := t.Simulate(); err != nil {
			return i, err
		}
	}
	t.logger.Debug().
		Int("simulations", i).
		Int("move_number", t.root.state.MoveNumber()).
		Int("nodes", t.NodeCount()).
		Int("depth", t.Depth()).
		Float32("value", t.AverageValue()).
		Msg("search done")
	return i, nil
}

// Simulate runs one select, expand and backpropagate cycle.
func (t *MCTS) Simulate() error {
	leaf, err := t.Select()
	if err != nil {
		return err
	}
	value, err := t.Expand(leaf)
	if err != nil {
		return err
	}
	t.Backpropagate(leaf, value)
	return nil
}

// Select descends from the root, choosing the child with the highest Q+U until it reaches a node
// without children. Ties go to the first child.
func (t *MCTS) Select() (*Node, error) {
	n := t.root
	for n.HasChildren() {
		var best *Node
		bestScore := math32.Inf(-1)
		for _, kid := range n.children {
			u, err := kid.U()
			if err != nil {
				return nil, err
			}
			if score := kid.Q() + u; score > bestScore {
				best = kid
				bestScore = score
			}
		}
		if best == nil {
			return nil, errors.Wrapf(ErrNoSelectableChild, "%v", n)
		}
		n = best
	}
	return n, nil
}

// Expand evaluates the leaf and attaches one child per legal move. Terminal positions are scored
// without calling the evaluator: 1 when the game has a winner, 0 for a draw.
func (t *MCTS) Expand(leaf *Node) (float32, error) {
	if leaf.HasChildren() {
		return 0, errors.Errorf("mcts: node %v is already expanded", leaf)
	}
	state := leaf.state
	moves := state.LegalMoves()
	if len(moves) == 0 {
		if state.Winner() != game.None {
			return 1, nil
		}
		return 0, nil
	}
	if state.Winner() != game.None {
		// the player who moved here already won
		return 1, nil
	}

	policy, value, err := t.nn.Infer(state)
	if err != nil {
		return 0, errors.Wrap(err, "mcts: evaluate leaf")
	}
	if len(policy) != state.ActionSpace() {
		return 0, errors.Errorf("mcts: policy has %d entries, expected %d", len(policy), state.ActionSpace())
	}

	for _, m := range moves {
		next := state.Clone()
		if err := next.Apply(m); err != nil {
			return 0, errors.Wrapf(err, "mcts: expand move %d", m)
		}
		leaf.AddChild(NewNode(next, m, policy[m]))
	}

	if leaf == t.root && !t.noised {
		if err := t.AddNoise(leaf); err != nil {
			return 0, err
		}
	}
	return value, nil
}

// AddNoise blends symmetric Dirichlet noise into the priors of the root's children:
//
//	P(s, a) = (1 - ε) * P(s, a) + ε * η_a,  η ~ Dir(α)
//
// The Dirichlet sample is drawn as normalized Gamma(α, 1) variates.
func (t *MCTS) AddNoise(n *Node) error {
	if n != t.root || !n.IsRoot() {
		return ErrNoiseOnNonRoot
	}
	t.noised = true
	if t.NoiseFraction <= 0 || len(n.children) == 0 {
		return nil
	}

	gamma := distuv.Gamma{Alpha: t.DirichletAlpha, Beta: 1, Src: t.src}
	noise := make([]float32, len(n.children))
	var sum float32
	for i := range noise {
		noise[i] = float32(gamma.Rand())
		sum += noise[i]
	}
	if sum < math32.SmallestNonzeroFloat32 {
		t.logger.Warn().Int("children", len(noise)).Msg("degenerate noise sample, using uniform noise")
		for i := range noise {
			noise[i] = 1
		}
		sum = float32(len(noise))
	}

	eps := t.NoiseFraction
	for i, kid := range n.children {
		kid.prior = kid.prior*(1-eps) + noise[i]/sum*eps
	}
	return nil
}

// Backpropagate walks from leaf to the root. Every node on the path gets one more visit and
// the result, negated at nodes where a different player is to move than at the leaf.
func (t *MCTS) Backpropagate(leaf *Node, result float32) {
	mover := leaf.state.Turn()
	for n := leaf; n != nil; n = n.parent {
		if n.state.Turn() == mover {
			n.update(result)
		} else {
			n.update(-result)
		}
	}
}
