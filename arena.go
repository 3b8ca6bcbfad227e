package alphafour

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/alphafour/game"
	"github.com/alphafour/mcts"
	"github.com/alphafour/trajectory"
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
)

// Option configures an Arena or an AZ.
type Option func(o *options)

type options struct {
	logger zerolog.Logger
	seed   uint64
	out    io.Writer
}

func defaultOptions() options {
	return options{
		logger: log.Logger,
		seed:   uint64(time.Now().UnixNano()),
		out:    os.Stdout,
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithSeed makes the games reproducible.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = seed }
}

// WithOutput sets where boards are rendered when SelfPlay.ShowMoves is on.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// Arena represents a game arena: the live game and the two agents playing it.
type Arena struct {
	r      *rand.Rand
	game   game.State
	yellow *Agent
	red    *Agent

	conf   Config
	store  *trajectory.Store
	logger zerolog.Logger
	out    io.Writer

	gameNumber int // which game is this in
}

// NewArena makes an arena for g. The agents may share an evaluator. store may be nil when
// SelfPlay.SaveMemory is off.
func NewArena(g game.State, yellowNN, redNN mcts.Inferencer, conf Config, store *trajectory.Store, opts ...Option) (*Arena, error) {
	if !conf.MCTS.IsValid() {
		return nil, errors.Errorf("invalid MCTS config %+v", conf.MCTS)
	}
	if yellowNN == nil || redNN == nil {
		return nil, errors.New("both agents need an evaluator")
	}
	if conf.SelfPlay.SaveMemory && store == nil {
		return nil, errors.New("saving memory needs a store")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	r := rand.New(rand.NewSource(o.seed))
	newAgent := func(name string, p game.Player, nn mcts.Inferencer) *Agent {
		logger := o.logger.With().Str("agent", name).Logger()
		return &Agent{
			Name:   name,
			Player: p,
			NN:     nn,
			MCTS:   mcts.New(g, conf.MCTS, nn, mcts.WithSeed(r.Uint64()), mcts.WithLogger(logger)),
		}
	}

	return &Arena{
		r:      r,
		game:   g,
		yellow: newAgent("yellow", game.Yellow, yellowNN),
		red:    newAgent("red", game.Red, redNN),
		conf:   conf,
		store:  store,
		logger: o.logger,
		out:    o.out,
	}, nil
}

// SelfPlay plays one game, recording the search's visit distribution before every move. When the
// game ends the outcome is written into every example and, if memory is saved, the game is stored
// as one file.
//
// A cancelled context stops the game at the next move or simulation boundary. The incomplete
// game is dropped, nothing is written, and the result has Completed unset.
func (a *Arena) SelfPlay(ctx context.Context) (GameResult, error) {
	a.newGame()
	logger := a.logger.With().Int("game", a.gameNumber).Logger()
	logger.Info().Msg("self playing")

	var examples []trajectory.Example
	var history []int32
	var winner game.Player
	for {
		if ctx.Err() != nil {
			logger.Info().Int("moves", len(history)).Msg("game cancelled, discarding it")
			return GameResult{}, nil
		}
		var ended bool
		if ended, winner = a.game.Ended(); ended {
			break
		}

		agent := a.agentFor(a.game.Turn())
		if err := agent.prepare(a.game, history); err != nil {
			return GameResult{}, err
		}
		if _, err := agent.MCTS.Search(ctx); err != nil {
			return GameResult{}, errors.Wrapf(err, "search at move %d", a.game.MoveNumber())
		}
		if ctx.Err() != nil {
			continue
		}
		agent.markSearched(a.game)

		policy, err := agent.MCTS.Policies()
		if err != nil {
			return GameResult{}, err
		}
		if err = checkPolicies(policy); err != nil {
			return GameResult{}, errors.Wrapf(err, "%v at move %d", agent.Name, a.game.MoveNumber())
		}
		examples = append(examples, trajectory.Example{
			Board:  a.game.Board(),
			Mover:  uint8(a.game.Turn()),
			Policy: policy,
		})

		var best int32
		if a.conf.MCTS.Stochastic {
			best, err = agent.MCTS.SampleMove()
		} else {
			best, err = agent.MCTS.BestMove()
		}
		if err != nil {
			return GameResult{}, err
		}
		if err = a.game.Apply(best); err != nil {
			return GameResult{}, errors.Wrapf(err, "%v plays %d", agent.Name, best)
		}
		history = append(history, best)

		logger.Debug().
			Str("player", agent.Name).
			Int32("move", best).
			Float32("value", agent.MCTS.AverageValue()).
			Msg("played")
		if a.conf.SelfPlay.ShowMoves {
			if err = game.Render(a.out, a.game); err != nil {
				return GameResult{}, errors.WithStack(err)
			}
		}
	}

	outcome := outcomeOf(winner)
	for i := range examples {
		examples[i].Outcome = outcome
	}

	res := GameResult{
		Completed: true,
		Winner:    winner,
		Moves:     len(history),
		Examples:  len(examples),
	}
	if a.conf.SelfPlay.SaveMemory {
		path, err := a.store.WriteGame(trajectory.NewGameID(a.r), examples)
		if err != nil {
			return res, err
		}
		res.File = path
	}
	logger.Info().Stringer("winner", winner).Int("moves", res.Moves).Msg("game over")
	return res, nil
}

// Play plays an evaluation game. Both agents always take their most visited move and nothing is
// recorded. The agents' Wins, Loss and Draw are updated.
func (a *Arena) Play(ctx context.Context) (GameResult, error) {
	a.newGame()
	var history []int32
	var winner game.Player
	for {
		if ctx.Err() != nil {
			return GameResult{}, nil
		}
		var ended bool
		if ended, winner = a.game.Ended(); ended {
			break
		}
		agent := a.agentFor(a.game.Turn())
		if err := agent.prepare(a.game, history); err != nil {
			return GameResult{}, err
		}
		if _, err := agent.MCTS.Search(ctx); err != nil {
			return GameResult{}, err
		}
		if ctx.Err() != nil {
			continue
		}
		agent.markSearched(a.game)
		best, err := agent.MCTS.BestMove()
		if err != nil {
			return GameResult{}, err
		}
		if err = a.game.Apply(best); err != nil {
			return GameResult{}, errors.Wrapf(err, "%v plays %d", agent.Name, best)
		}
		history = append(history, best)
		if a.conf.SelfPlay.ShowMoves {
			if err = game.Render(a.out, a.game); err != nil {
				return GameResult{}, errors.WithStack(err)
			}
		}
	}

	switch winner {
	case game.Yellow:
		a.yellow.Wins++
		a.red.Loss++
	case game.Red:
		a.red.Wins++
		a.yellow.Loss++
	default:
		a.yellow.Draw++
		a.red.Draw++
	}
	return GameResult{Completed: true, Winner: winner, Moves: len(history)}, nil
}

// GameNumber returns the number of games started in this arena.
func (a *Arena) GameNumber() int { return a.gameNumber }

// State of the game
func (a *Arena) State() game.State { return a.game }

// Agent returns the agent playing p.
func (a *Arena) Agent(p game.Player) *Agent { return a.agentFor(p) }

// Close closes the evaluators of both agents once each.
func (a *Arena) Close() error {
	return closeAll(a.yellow.NN, a.red.NN)
}

func (a *Arena) newGame() {
	a.gameNumber++
	a.game.Reset()
	a.yellow.newGame(a.game)
	a.red.newGame(a.game)
}

func (a *Arena) agentFor(p game.Player) *Agent {
	if p == game.Red {
		return a.red
	}
	return a.yellow
}

// outcomeOf is the recorded outcome: +1 when yellow won, -1 when red won, 0 for a draw.
func outcomeOf(winner game.Player) int8 {
	switch winner {
	case game.Yellow:
		return 1
	case game.Red:
		return -1
	}
	return 0
}

// checkPolicies rejects a search distribution that is not finite or does not sum to 1.
func checkPolicies(policy []float32) error {
	var sum float32
	for i, v := range policy {
		if math32.IsInf(v, 0) || math32.IsNaN(v) {
			return errors.Errorf("policy[%d] is %v", i, v)
		}
		sum += v
	}
	if math32.Abs(sum-1) >= 1e-3 {
		return errors.Errorf("policy sums to %v", sum)
	}
	return nil
}
