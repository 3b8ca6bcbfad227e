package alphafour

import (
	"context"

	dual "github.com/alphafour/dualnet"
	"github.com/alphafour/game"
	"github.com/alphafour/mcts"
	"github.com/alphafour/trajectory"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"
)

// AZ is the top level structure and the entry point of the API.
// It ties the arena, the result tally and the trajectory store together.
// AZ stands for AlphaZero
type AZ struct {
	// state
	*Arena
	Tally

	// config
	conf   Config
	store  *trajectory.Store
	logger zerolog.Logger
	r      *rand.Rand
}

// New creates the self-play pipeline. yellow and red may be the same evaluator.
func New(conf Config, yellow, red mcts.Inferencer, store *trajectory.Store, opts ...Option) (*AZ, error) {
	if !conf.IsValid() {
		return nil, errors.Errorf("invalid config %+v", conf)
	}
	g, err := game.NewConnect4(conf.Game)
	if err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	arena, err := NewArena(g, yellow, red, conf, store, opts...)
	if err != nil {
		return nil, err
	}
	return &AZ{
		Arena:  arena,
		conf:   conf,
		store:  store,
		logger: o.logger.With().Str("name", conf.Name).Logger(),
		r:      rand.New(rand.NewSource(o.seed + 1)),
	}, nil
}

// SelfPlayGames plays up to n games and adds their results to the tally. It stops early, without
// error, when ctx is cancelled.
func (a *AZ) SelfPlayGames(ctx context.Context, n int) (played int, err error) {
	for i := 0; i < n; i++ {
		res, err := a.SelfPlay(ctx)
		if err != nil {
			return played, err
		}
		if !res.Completed {
			break
		}
		played++
		a.Tally.Add(res.Winner)
		a.logger.Info().
			Int("game", i+1).
			Int("of", n).
			Stringer("winner", res.Winner).
			Int("moves", res.Moves).
			Str("tally", a.Tally.String()).
			Msg("self play")
	}
	return played, nil
}

// Evaluate plays up to n evaluation games and returns yellow's record over them.
func (a *AZ) Evaluate(ctx context.Context, n int) (wins, loss, draw float32, err error) {
	a.yellow.resetStats()
	a.red.resetStats()
	for i := 0; i < n; i++ {
		res, err := a.Play(ctx)
		if err != nil {
			return 0, 0, 0, err
		}
		if !res.Completed {
			break
		}
		a.logger.Info().Int("game", i+1).Stringer("winner", res.Winner).Int("moves", res.Moves).Msg("evaluation")
	}
	return a.yellow.Wins, a.yellow.Loss, a.yellow.Draw, nil
}

// Learn runs the training pipeline for iters rounds: self-play games, load the stored examples,
// train on them and archive the files that were used.
func (a *AZ) Learn(ctx context.Context, iters, games int, trainer Trainer) error {
	if !a.conf.SelfPlay.SaveMemory {
		return errors.New("learning needs SaveMemory: examples are read back from the store")
	}
	for epoch := 0; epoch < iters; epoch++ {
		a.logger.Info().Int("epoch", epoch).Msg("self play")
		if _, err := a.SelfPlayGames(ctx, games); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		examples, err := a.store.Load()
		if err != nil {
			return err
		}
		shuffleExamples(examples, a.r)
		if a.conf.MaxExamples > 0 && len(examples) > a.conf.MaxExamples {
			examples = examples[:a.conf.MaxExamples]
		}
		xs, policies, values, batches, err := PrepareExamples(examples, a.conf.NN)
		if err != nil {
			return err
		}
		if batches == 0 {
			return errors.Errorf("%d examples are too few for a batch of %d", len(examples), a.conf.NN.BatchSize)
		}

		a.logger.Info().Int("examples", len(examples)).Int("batches", batches).Msg("begin training")
		if err = trainer.Train(xs, policies, values, batches); err != nil {
			return errors.WithMessage(err, "train")
		}
		if err = a.store.Archive(); err != nil {
			return err
		}
	}
	return nil
}

// PrepareExamples turns stored examples into training tensors. Only whole batches are used. The
// value target is the stored outcome seen from the player to move in each example.
func PrepareExamples(examples []trajectory.Example, conf dual.Config) (Xs, Policies, Values *tensor.Dense, batches int, err error) {
	if conf.Features != game.Planes {
		return nil, nil, nil, 0, errors.Errorf("network expects %d input planes, the encoder produces %d", conf.Features, game.Planes)
	}
	batches = len(examples) / conf.BatchSize
	total := batches * conf.BatchSize
	if total == 0 {
		return nil, nil, nil, 0, nil
	}
	cells := conf.Height * conf.Width
	XsBacking := make([]float32, 0, total*conf.InputSize())
	PoliciesBacking := make([]float32, 0, total*conf.ActionSpace)
	ValuesBacking := make([]float32, 0, total)
	for i, ex := range examples[:total] {
		if len(ex.Board) != cells || len(ex.Policy) != conf.ActionSpace {
			return nil, nil, nil, 0, errors.Errorf("example %d has %d cells and %d actions, expected %d and %d",
				i, len(ex.Board), len(ex.Policy), cells, conf.ActionSpace)
		}
		mover := game.Player(ex.Mover)
		XsBacking = append(XsBacking, game.EncodeBoard(ex.Board, mover, conf.Height, conf.Width)...)
		PoliciesBacking = append(PoliciesBacking, ex.Policy...)

		value := float32(ex.Outcome)
		if mover == game.Red {
			value = -value
		}
		ValuesBacking = append(ValuesBacking, value)
	}

	Xs = tensor.New(tensor.WithBacking(XsBacking), tensor.WithShape(total, conf.Features, conf.Height, conf.Width))
	Policies = tensor.New(tensor.WithBacking(PoliciesBacking), tensor.WithShape(total, conf.ActionSpace))
	Values = tensor.New(tensor.WithBacking(ValuesBacking), tensor.WithShape(total))
	return
}

func shuffleExamples(examples []trajectory.Example, r *rand.Rand) {
	for i := range examples {
		j := r.Intn(i + 1)
		examples[i], examples[j] = examples[j], examples[i]
	}
}
