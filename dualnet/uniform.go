package dual

import "github.com/alphafour/game"

// Uniform is an evaluator without knowledge: every move is equally likely and every position is even.
// It is the baseline opponent and what the search falls back to before a network exists.
type Uniform struct{}

func (Uniform) Infer(state game.State) ([]float32, float32, error) {
	policy := make([]float32, state.ActionSpace())
	p := 1 / float32(len(policy))
	for i := range policy {
		policy[i] = p
	}
	return policy, 0, nil
}

func (Uniform) Close() error { return nil }
