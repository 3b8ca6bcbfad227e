package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alphafour"
	dual "github.com/alphafour/dualnet"
	"github.com/alphafour/trajectory"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	configPath    = flag.String("config", "", "YAML config file, defaults are used when empty")
	sims          = flag.Int("sims", 0, "simulations per move, overrides the config")
	games         = flag.Int("games", 0, "number of games, overrides the config")
	workers       = flag.Int("workers", 1, "games played in parallel")
	memoryFolder  = flag.String("memory-folder", "", "where games are written, overrides the config")
	modelPath     = flag.String("model", "", "saved network; a fresh network is used if the file does not exist")
	onnxPath      = flag.String("onnx", "", "ONNX model, takes precedence over -model")
	deterministic = flag.Bool("deterministic", false, "always play the most visited move")
	showMoves     = flag.Bool("show-moves", false, "print the board after every move")
	logLevel      = flag.String("log-level", "info", "zerolog level")
)

func main() {
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("bad log level")
	}
	zerolog.SetGlobalLevel(level)

	conf := alphafour.DefaultConfig()
	if *configPath != "" {
		if conf, err = alphafour.LoadConfig(*configPath); err != nil {
			log.Fatal().Err(err).Msg("load config")
		}
	}
	if *sims > 0 {
		conf.MCTS.Simulations = *sims
	}
	if *games > 0 {
		conf.SelfPlay.Games = *games
	}
	if *memoryFolder != "" {
		conf.Store.Dir = *memoryFolder
	}
	if *deterministic {
		conf.MCTS.Stochastic = false
	}
	if *showMoves {
		conf.SelfPlay.ShowMoves = true
	}
	if !conf.IsValid() {
		log.Fatal().Interface("config", conf).Msg("invalid config")
	}

	store, err := trajectory.NewStore(conf.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	nn, err := dual.Open(conf.NN, *modelPath, *onnxPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load evaluator")
	}
	defer nn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n := *workers
	if n < 1 {
		n = 1
	}
	var mu sync.Mutex
	var total alphafour.Tally
	eg, egCtx := errgroup.WithContext(ctx)
	seed := uint64(time.Now().UnixNano())
	for w := 0; w < n; w++ {
		w := w
		share := conf.SelfPlay.Games / n
		if w < conf.SelfPlay.Games%n {
			share++
		}
		eg.Go(func() error {
			logger := log.With().Int("worker", w).Logger()
			az, err := alphafour.New(conf, nn, nn, store, alphafour.WithSeed(seed+uint64(w)), alphafour.WithLogger(logger))
			if err != nil {
				return err
			}
			if _, err = az.SelfPlayGames(egCtx, share); err != nil {
				return err
			}
			mu.Lock()
			total.Yellow += az.Tally.Yellow
			total.Red += az.Tally.Red
			total.Draws += az.Tally.Draws
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		log.Fatal().Err(err).Msg("self play")
	}
	if ctx.Err() != nil {
		log.Info().Msg("stopped by signal")
	}
	log.Info().Int("games", total.Games()).Str("tally", total.String()).Msg("done")
}
