package alphafour

import (
	"io"
	"sync"

	"github.com/alphafour/game"
	"github.com/alphafour/mcts"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// An Agent is a player. It owns its own search tree.
type Agent struct {
	Name   string
	Player game.Player
	NN     mcts.Inferencer
	MCTS   *mcts.MCTS

	// Statistics
	Wins float32
	Loss float32
	Draw float32
	sync.Mutex

	searched bool // MCTS holds a tree from an earlier move of the current game
	lastPly  int  // move number of the root the agent last searched from
}

// prepare points the search tree at state. When the agent searched two plies ago the subtree
// below its own move and the opponent's reply is reused. Otherwise it starts from a fresh root.
func (a *Agent) prepare(state game.State, history []int32) error {
	if !a.searched || state.MoveNumber() != a.lastPly+2 || len(history) < 2 {
		a.MCTS.Reset(state)
		return nil
	}
	for _, m := range history[len(history)-2:] {
		if err := a.MCTS.Advance(m); err != nil {
			if errors.Cause(err) == mcts.ErrChildNotFound {
				// the move was never expanded, so there is nothing to reuse
				a.MCTS.Reset(state)
				return nil
			}
			return err
		}
	}
	if !a.MCTS.Root().State().Eq(state) {
		return errors.Errorf("%v: search tree is out of sync with the game at move %d", a.Name, state.MoveNumber())
	}
	return nil
}

// markSearched records that the current root was searched.
func (a *Agent) markSearched(state game.State) {
	a.searched = true
	a.lastPly = state.MoveNumber()
}

// newGame forgets the tree of the previous game.
func (a *Agent) newGame(state game.State) {
	a.searched = false
	a.MCTS.Reset(state)
}

func (a *Agent) resetStats() {
	a.Lock()
	a.Wins = 0
	a.Loss = 0
	a.Draw = 0
	a.Unlock()
}

// Close closes the evaluator if it holds resources.
func (a *Agent) Close() error {
	return closeAll(a.NN)
}

// closeAll closes every distinct evaluator that implements io.Closer.
func closeAll(nns ...mcts.Inferencer) error {
	var errs error
	seen := make(map[io.Closer]bool)
	for _, nn := range nns {
		c, ok := nn.(io.Closer)
		if !ok || seen[c] {
			continue
		}
		seen[c] = true
		if err := c.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}
