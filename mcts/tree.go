package mcts

import (
	"time"

	"github.com/alphafour/game"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"
)

var (
	// ErrNoSelectableChild is returned when a node has children but none of them scores. It means
	// the tree is corrupted.
	ErrNoSelectableChild = errors.New("mcts: node has children but none is selectable")
	ErrRootHasNoParent   = errors.New("mcts: root has no parent")
	ErrNoiseOnNonRoot    = errors.New("mcts: exploration noise on a non-root node")
	// ErrChildNotFound means the live game and the search tree went out of sync.
	ErrChildNotFound = errors.New("mcts: no child for move")
	ErrNoChildren    = errors.New("mcts: root has no children")
)

// Config is the structure to configure the search.
type Config struct {
	Simulations    int     `json:"simulations" yaml:"simulations"`         // simulations per Search
	DirichletAlpha float64 `json:"dirichlet_alpha" yaml:"dirichlet_alpha"` // concentration of the root noise
	NoiseFraction  float32 `json:"noise_fraction" yaml:"noise_fraction"`   // share of the noise in the root priors. 0 disables noise
	Stochastic     bool    `json:"stochastic" yaml:"stochastic"`           // ChooseMove samples by visit count instead of taking the most visited move
}

func DefaultConfig() Config {
	return Config{
		Simulations:    200,
		DirichletAlpha: 0.3,
		NoiseFraction:  0.25,
		Stochastic:     true,
	}
}

func (c Config) IsValid() bool {
	return c.Simulations > 0 && c.DirichletAlpha > 0 && c.NoiseFraction >= 0 && c.NoiseFraction <= 1
}

// Inferencer is essentially the neural network. The value is from the point of view of the player
// who made the last move in state, i.e. the opponent of state.Turn().
type Inferencer interface {
	Infer(state game.State) (policy []float32, value float32, err error)
}

// Option configures an MCTS.
type Option func(t *MCTS)

// WithSource sets the random source used for noise and move sampling.
func WithSource(src rand.Source) Option {
	return func(t *MCTS) {
		if src != nil {
			t.src = src
			t.rand = rand.New(src)
		}
	}
}

// WithSeed seeds the random source.
func WithSeed(seed uint64) Option {
	return WithSource(rand.NewSource(seed))
}

func WithLogger(logger zerolog.Logger) Option {
	return func(t *MCTS) {
		t.logger = logger
	}
}

// MCTS is a single-threaded search tree. It exclusively owns every node below its root.
type MCTS struct {
	Config
	nn     Inferencer
	src    rand.Source
	rand   *rand.Rand
	logger zerolog.Logger

	root   *Node
	noised bool // root priors already carry exploration noise
}

func New(state game.State, conf Config, nn Inferencer, opts ...Option) *MCTS {
	src := rand.NewSource(uint64(time.Now().UnixNano()))
	t := &MCTS{
		Config: conf,
		nn:     nn,
		src:    src,
		rand:   rand.New(src),
		logger: zerolog.Nop(),
		root:   NewRoot(state),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *MCTS) Root() *Node { return t.root }

// SetRoot installs n as the new root. If n is a child of the current tree it is detached first.
// The previous root and everything not below n are released. Setting the current root again
// changes nothing.
func (t *MCTS) SetRoot(n *Node) {
	old := t.root
	if old == n {
		return
	}
	n.detach()
	if old != nil {
		old.release()
	}
	t.root = n
	t.noised = false
}

// Reset throws the tree away and starts over from a copy of state.
func (t *MCTS) Reset(state game.State) {
	t.SetRoot(NewRoot(state))
}

// Advance reuses the subtree below the root's child for move. Its statistics are preserved.
func (t *MCTS) Advance(move int32) error {
	child := t.root.ChildAfterMove(move)
	if child == nil {
		return errors.Wrapf(ErrChildNotFound, "move %d among %d children", move, len(t.root.children))
	}
	t.SetRoot(child)
	return nil
}

// NodeCount counts every node in the tree, the root included.
func (t *MCTS) NodeCount() int { return t.root.countChildren() + 1 }

// Depth returns the height of the tree. A lone root has depth 0.
func (t *MCTS) Depth() int { return t.root.depth() }

// AverageValue is the visit-weighted mean Q of the root's children.
func (t *MCTS) AverageValue() float32 {
	var sum, visits float32
	for _, kid := range t.root.children {
		sum += kid.valueSum
		visits += float32(kid.visits)
	}
	if visits == 0 {
		return 0
	}
	return sum / visits
}
