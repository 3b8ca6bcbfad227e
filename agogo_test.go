package alphafour

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	dual "github.com/alphafour/dualnet"
	"github.com/alphafour/game"
	"github.com/alphafour/mcts"
	"github.com/alphafour/trajectory"
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func testConfig(t *testing.T) Config {
	conf := DefaultConfig()
	conf.MCTS.Simulations = 25
	conf.NN.BatchSize = 4
	conf.Store = trajectory.Config{Dir: filepath.Join(t.TempDir(), "memory"), OldDir: "old"}
	return conf
}

func testStore(t *testing.T, conf Config) *trajectory.Store {
	s, err := trajectory.NewStore(conf.Store, trajectory.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return s
}

func testAZ(t *testing.T, conf Config, nn ...mcts.Inferencer) *AZ {
	t.Helper()
	var yellow, red mcts.Inferencer = dual.Uniform{}, dual.Uniform{}
	if len(nn) == 2 {
		yellow, red = nn[0], nn[1]
	}
	az, err := New(conf, yellow, red, testStore(t, conf), WithSeed(42), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return az
}

// cancelling cancels a context after a number of evaluations.
type cancelling struct {
	dual.Uniform
	after  int
	calls  int
	cancel context.CancelFunc
}

func (c *cancelling) Infer(state game.State) ([]float32, float32, error) {
	c.calls++
	if c.calls == c.after {
		c.cancel()
	}
	return c.Uniform.Infer(state)
}

// closer counts Close calls.
type closer struct {
	dual.Uniform
	closed int
}

func (c *closer) Close() error {
	c.closed++
	return nil
}

type fakeTrainer struct {
	calls   int
	batches int
	shapes  []tensor.Shape
}

func (f *fakeTrainer) Train(xs, policies, values *tensor.Dense, batches int) error {
	f.calls++
	f.batches = batches
	f.shapes = []tensor.Shape{xs.Shape(), policies.Shape(), values.Shape()}
	return nil
}

func TestSelfPlay(t *testing.T) {
	conf := testConfig(t)
	az := testAZ(t, conf)

	res, err := az.SelfPlay(context.Background())
	require.NoError(t, err)
	require.True(t, res.Completed)
	assert.GreaterOrEqual(t, res.Moves, 7)
	assert.Equal(t, res.Moves, res.Examples)
	require.FileExists(t, res.File)

	examples, err := trajectory.ReadFile(res.File)
	require.NoError(t, err)
	require.Len(t, examples, res.Moves)

	replay, err := game.NewConnect4(conf.Game)
	require.NoError(t, err)
	for i, ex := range examples {
		assert.Equal(t, outcomeOf(res.Winner), ex.Outcome, "example %d", i)
		assert.Equal(t, uint8(replay.Turn()), ex.Mover, "example %d", i)
		assert.Equal(t, replay.Board(), ex.Board, "example %d", i)

		var sum float32
		for a, p := range ex.Policy {
			sum += p
			if !replay.Check(int32(a)) {
				assert.Zero(t, p, "illegal move %d in example %d", a, i)
			}
		}
		assert.InDelta(t, 1, sum, 1e-4)

		// the boards of consecutive examples differ by exactly one piece
		if i+1 < len(examples) {
			var diff int
			for c := range ex.Board {
				if ex.Board[c] != examples[i+1].Board[c] {
					diff++
				}
			}
			assert.Equal(t, 1, diff)
			for c := 0; c < replay.Cols(); c++ {
				next := replay.Clone()
				if next.Apply(int32(c)) == nil && bytes.Equal(next.Board(), examples[i+1].Board) {
					require.NoError(t, replay.Apply(int32(c)))
					break
				}
			}
		}
	}
	assert.Equal(t, 1, az.GameNumber())
}

func TestOutcomePolarity(t *testing.T) {
	assert.Equal(t, int8(1), outcomeOf(game.Yellow))
	assert.Equal(t, int8(-1), outcomeOf(game.Red))
	assert.Equal(t, int8(0), outcomeOf(game.None))
}

func TestSelfPlayCancelled(t *testing.T) {
	t.Run("before the game", func(t *testing.T) {
		conf := testConfig(t)
		az := testAZ(t, conf)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, err := az.SelfPlay(ctx)
		require.NoError(t, err)
		assert.False(t, res.Completed)
		assert.NoDirExists(t, conf.Store.Dir)
	})

	t.Run("during a search", func(t *testing.T) {
		conf := testConfig(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		nn := &cancelling{after: 60, cancel: cancel}
		az := testAZ(t, conf, nn, nn)

		res, err := az.SelfPlay(ctx)
		require.NoError(t, err)
		assert.False(t, res.Completed)
		assert.Equal(t, 60, nn.calls, "the search stops at the next simulation")
		files, err := az.store.Files()
		require.NoError(t, err)
		assert.Empty(t, files, "the incomplete game is discarded")

		played, err := az.SelfPlayGames(ctx, 3)
		require.NoError(t, err)
		assert.Zero(t, played)
		assert.Zero(t, az.Tally.Games())
	})
}

func TestSelfPlayWithoutMemory(t *testing.T) {
	conf := testConfig(t)
	conf.SelfPlay.SaveMemory = false
	conf.SelfPlay.ShowMoves = true
	var out bytes.Buffer
	az, err := New(conf, dual.Uniform{}, dual.Uniform{}, nil, WithSeed(1), WithLogger(zerolog.Nop()), WithOutput(&out))
	require.NoError(t, err)

	res, err := az.SelfPlay(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Empty(t, res.File)
	assert.NoDirExists(t, conf.Store.Dir)
	assert.Contains(t, out.String(), "0 1 2 3 4 5 6")

	assert.Error(t, az.Learn(context.Background(), 1, 1, &fakeTrainer{}))
}

func TestTreeReuse(t *testing.T) {
	conf := testConfig(t)
	conf.MCTS.Simulations = 200
	az := testAZ(t, conf)
	ctx := context.Background()
	az.newGame()
	yellow := az.Agent(game.Yellow)

	require.NoError(t, yellow.prepare(az.State(), nil))
	_, err := yellow.MCTS.Search(ctx)
	require.NoError(t, err)
	yellow.markSearched(az.State())
	best, err := yellow.MCTS.BestMove()
	require.NoError(t, err)
	own := yellow.MCTS.Root().ChildAfterMove(best)
	require.True(t, own.HasChildren())
	reply := own.Children()[0]
	visits := reply.Visits()

	require.NoError(t, az.State().Apply(best))
	require.NoError(t, az.State().Apply(reply.Move()))
	require.NoError(t, yellow.prepare(az.State(), []int32{best, reply.Move()}))

	root := yellow.MCTS.Root()
	assert.Equal(t, reply, root)
	assert.True(t, root.IsRoot())
	assert.Equal(t, visits, root.Visits(), "statistics survive")
	assert.True(t, root.State().Eq(az.State()))

	t.Run("unexpanded reply starts over", func(t *testing.T) {
		az.newGame()
		require.NoError(t, yellow.prepare(az.State(), nil))
		require.NoError(t, yellow.MCTS.Simulate())
		yellow.markSearched(az.State())
		require.NoError(t, az.State().Apply(0))
		require.NoError(t, az.State().Apply(1))
		require.NoError(t, yellow.prepare(az.State(), []int32{0, 1}))
		assert.Zero(t, yellow.MCTS.Root().Visits())
		assert.True(t, yellow.MCTS.Root().State().Eq(az.State()))
	})
}

func TestPlay(t *testing.T) {
	conf := testConfig(t)
	az := testAZ(t, conf)
	for i := 0; i < 2; i++ {
		res, err := az.Play(context.Background())
		require.NoError(t, err)
		require.True(t, res.Completed)
	}
	yellow, red := az.Agent(game.Yellow), az.Agent(game.Red)
	assert.Equal(t, float32(2), yellow.Wins+yellow.Loss+yellow.Draw)
	assert.Equal(t, yellow.Wins, red.Loss)
	assert.Equal(t, yellow.Draw, red.Draw)
	files, err := az.store.Files()
	require.NoError(t, err)
	assert.Empty(t, files, "evaluation games are not recorded")

	yellow.resetStats()
	assert.Zero(t, yellow.Wins+yellow.Loss+yellow.Draw)
}

func TestEvaluate(t *testing.T) {
	conf := testConfig(t)
	az := testAZ(t, conf)
	_, err := az.Play(context.Background())
	require.NoError(t, err)

	wins, loss, draw, err := az.Evaluate(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, float32(2), wins+loss+draw, "earlier games are not counted")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	wins, loss, draw, err = az.Evaluate(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, wins+loss+draw)
}

func TestSelfPlayGamesTally(t *testing.T) {
	conf := testConfig(t)
	az := testAZ(t, conf)
	played, err := az.SelfPlayGames(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, played)
	assert.Equal(t, 3, az.Tally.Games())
	files, err := az.store.Files()
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestLearn(t *testing.T) {
	conf := testConfig(t)
	az := testAZ(t, conf)
	trainer := &fakeTrainer{}
	require.NoError(t, az.Learn(context.Background(), 1, 2, trainer))

	assert.Equal(t, 1, trainer.calls)
	require.Len(t, trainer.shapes, 3)
	n := trainer.batches * conf.NN.BatchSize
	assert.Equal(t, tensor.Shape{n, game.Planes, 6, 7}, trainer.shapes[0])
	assert.Equal(t, tensor.Shape{n, 7}, trainer.shapes[1])
	assert.Equal(t, tensor.Shape{n}, trainer.shapes[2])

	files, err := az.store.Files()
	require.NoError(t, err)
	assert.Empty(t, files, "used games are archived")
	old, err := filepath.Glob(filepath.Join(conf.Store.Dir, "old", "*.bin"))
	require.NoError(t, err)
	assert.Len(t, old, 2)
}

func TestPrepareExamples(t *testing.T) {
	conf := dual.DefaultConf(6, 7, 7)
	conf.BatchSize = 2
	board := make([]uint8, 42)
	policy := []float32{0, 0, 0, 1, 0, 0, 0}
	examples := []trajectory.Example{
		{Board: board, Mover: uint8(game.Yellow), Policy: policy, Outcome: 1},
		{Board: board, Mover: uint8(game.Red), Policy: policy, Outcome: 1},
		{Board: board, Mover: uint8(game.Red), Policy: policy, Outcome: -1},
	}

	xs, policies, values, batches, err := PrepareExamples(examples, conf)
	require.NoError(t, err)
	assert.Equal(t, 1, batches)
	assert.Equal(t, tensor.Shape{2, game.Planes, 6, 7}, xs.Shape())
	assert.Equal(t, tensor.Shape{2, 7}, policies.Shape())
	assert.Equal(t, []float32{1, -1}, values.Data())

	_, _, _, batches, err = PrepareExamples(examples[:1], conf)
	require.NoError(t, err)
	assert.Zero(t, batches)

	bad := []trajectory.Example{{Board: board[:10], Policy: policy}, {Board: board, Policy: policy}}
	_, _, _, _, err = PrepareExamples(bad, conf)
	assert.Error(t, err)
}

func TestCheckPolicies(t *testing.T) {
	assert.NoError(t, checkPolicies([]float32{0.5, 0.5, 0}))
	assert.Error(t, checkPolicies([]float32{0.5, 0.4}))
	assert.Error(t, checkPolicies([]float32{math32.NaN(), 1}))
	assert.Error(t, checkPolicies([]float32{math32.Inf(1), 0}))
	assert.Error(t, checkPolicies([]float32{math32.Inf(-1), 1}))
}

func TestTally(t *testing.T) {
	var tally Tally
	tally.Add(game.Yellow)
	tally.Add(game.Red)
	tally.Add(game.Red)
	tally.Add(game.None)
	assert.Equal(t, Tally{Yellow: 1, Red: 2, Draws: 1}, tally)
	assert.Equal(t, 4, tally.Games())
	assert.Equal(t, "Yellow 1, Red 2, Draws 1", tally.String())
}

func TestConfig(t *testing.T) {
	assert.True(t, DefaultConfig().IsValid())

	conf := DefaultConfig()
	conf.NN.Width = 5
	assert.False(t, conf.IsValid())

	dir := t.TempDir()
	path := filepath.Join(dir, "conf.yaml")
	conf = DefaultConfig()
	conf.MCTS.Simulations = 800
	conf.Store.Dir = "games"
	require.NoError(t, conf.Save(path))
	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, conf, loaded)

	partial := filepath.Join(dir, "partial.yaml")
	require.NoError(t, os.WriteFile(partial, []byte("mcts:\n  simulations: 50\n"), 0o644))
	loaded, err = LoadConfig(partial)
	require.NoError(t, err)
	assert.Equal(t, 50, loaded.MCTS.Simulations)
	assert.Equal(t, DefaultConfig().MCTS.DirichletAlpha, loaded.MCTS.DirichletAlpha)
	assert.Equal(t, DefaultConfig().Store, loaded.Store)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("game:\n  rows: 2\n"), 0o644))
	_, err = LoadConfig(invalid)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.True(t, os.IsNotExist(errors.Cause(err)))
}

func TestClose(t *testing.T) {
	conf := testConfig(t)
	shared := &closer{}
	az := testAZ(t, conf, shared, shared)
	require.NoError(t, az.Close())
	assert.Equal(t, 1, shared.closed)

	require.NoError(t, az.Agent(game.Red).Close())
	assert.Equal(t, 2, shared.closed)
}
