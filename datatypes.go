package alphafour

import (
	"fmt"
	"os"

	dual "github.com/alphafour/dualnet"
	"github.com/alphafour/game"
	"github.com/alphafour/mcts"
	"github.com/alphafour/trajectory"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"gorgonia.org/tensor"
)

// Config for the AZ structure.
// It holds attributes that impacts the MCTS and the Neural Network
// as well as where self-play games are stored.
type Config struct {
	Name     string            `json:"name" yaml:"name"`
	Game     game.Config       `json:"game" yaml:"game"`
	MCTS     mcts.Config       `json:"mcts" yaml:"mcts"`
	NN       dual.Config       `json:"nn" yaml:"nn"`
	SelfPlay SelfPlayConfig    `json:"self_play" yaml:"self_play"`
	Store    trajectory.Config `json:"store" yaml:"store"`
	// maximum number of examples used for one round of training. 0 means all of them
	MaxExamples int `json:"max_examples" yaml:"max_examples"`
}

func DefaultConfig() Config {
	g := game.DefaultConfig()
	return Config{
		Name:     "connect4",
		Game:     g,
		MCTS:     mcts.DefaultConfig(),
		NN:       dual.DefaultConf(g.Rows, g.Cols, g.Cols),
		SelfPlay: DefaultSelfPlayConfig(),
		Store:    trajectory.DefaultConfig(),
	}
}

func (c Config) IsValid() bool {
	return c.Game.IsValid() &&
		c.MCTS.IsValid() &&
		c.NN.IsValid() &&
		c.SelfPlay.IsValid() &&
		c.Store.IsValid() &&
		c.MaxExamples >= 0 &&
		c.NN.Features == game.Planes &&
		c.NN.Height == c.Game.Rows &&
		c.NN.Width == c.Game.Cols &&
		c.NN.ActionSpace == c.Game.Cols
}

// LoadConfig reads a YAML config. Keys missing from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	conf := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return conf, errors.WithStack(err)
	}
	if err = yaml.Unmarshal(raw, &conf); err != nil {
		return conf, errors.Wrapf(err, "parse %s", path)
	}
	if !conf.IsValid() {
		return conf, errors.Errorf("invalid config in %s: %+v", path, conf)
	}
	return conf, nil
}

// Save writes the config as YAML.
func (c Config) Save(path string) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(path, raw, 0o644))
}

// SelfPlayConfig configures a self-play session.
type SelfPlayConfig struct {
	Games      int  `json:"games" yaml:"games"`             // games per session
	SaveMemory bool `json:"save_memory" yaml:"save_memory"` // write finished games to the store
	ShowMoves  bool `json:"show_moves" yaml:"show_moves"`   // render the board after every move
}

func DefaultSelfPlayConfig() SelfPlayConfig {
	return SelfPlayConfig{Games: 1, SaveMemory: true}
}

func (c SelfPlayConfig) IsValid() bool { return c.Games >= 0 }

// GameResult describes a finished or cancelled game.
type GameResult struct {
	Completed bool        // false if the game was cancelled. Nothing else is set then
	Winner    game.Player // None for a draw
	Moves     int
	Examples  int
	File      string // trajectory file, empty when memory is not saved
}

// Tally counts results over the lifetime of a process.
type Tally struct {
	Yellow int
	Red    int
	Draws  int
}

func (t *Tally) Add(winner game.Player) {
	switch winner {
	case game.Yellow:
		t.Yellow++
	case game.Red:
		t.Red++
	default:
		t.Draws++
	}
}

func (t Tally) Games() int { return t.Yellow + t.Red + t.Draws }

func (t Tally) String() string {
	return fmt.Sprintf("Yellow %d, Red %d, Draws %d", t.Yellow, t.Red, t.Draws)
}

// Trainer fits a network on prepared batches. Xs is [N, features, height, width], Policies is
// [N, actions] and Values is [N], the value being from the point of view of the player to move.
type Trainer interface {
	Train(xs, policies, values *tensor.Dense, batches int) error
}
