package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alphafour"
	dual "github.com/alphafour/dualnet"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	configPath = flag.String("config", "", "YAML config file, defaults are used when empty")
	yellowPath = flag.String("yellow", "", "saved network playing yellow, uniform when empty")
	redPath    = flag.String("red", "", "saved network playing red, uniform when empty")
	sims       = flag.Int("sims", 0, "simulations per move, overrides the config")
	games      = flag.Int("games", 1, "number of evaluation games")
	dotPath    = flag.String("dot", "", "write the last search tree as Graphviz to this file")
	dotDepth   = flag.Int("dot-depth", 2, "plies of the tree written with -dot")
)

func evaluator(path string) (dual.Evaluator, error) {
	if path == "" {
		return dual.Uniform{}, nil
	}
	d, err := dual.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func main() {
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	conf := alphafour.DefaultConfig()
	var err error
	if *configPath != "" {
		if conf, err = alphafour.LoadConfig(*configPath); err != nil {
			log.Fatal().Err(err).Msg("load config")
		}
	}
	if *sims > 0 {
		conf.MCTS.Simulations = *sims
	}
	conf.MCTS.Stochastic = false
	conf.SelfPlay.SaveMemory = false
	conf.SelfPlay.ShowMoves = true
	if !conf.IsValid() {
		log.Fatal().Interface("config", conf).Msg("invalid config")
	}

	yellow, err := evaluator(*yellowPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load yellow")
	}
	red, err := evaluator(*redPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load red")
	}

	az, err := alphafour.New(conf, yellow, red, nil, alphafour.WithOutput(os.Stdout), alphafour.WithLogger(log.Logger))
	if err != nil {
		log.Fatal().Err(err).Msg("new arena")
	}
	defer az.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	wins, loss, draw, err := az.Evaluate(ctx, *games)
	if err != nil {
		log.Fatal().Err(err).Msg("play")
	}
	log.Info().Float32("wins", wins).Float32("losses", loss).Float32("draws", draw).Msg("yellow's record")

	if *dotPath != "" {
		tree := lastSearcher(az).MCTS
		dot, err := tree.ToDot(*dotDepth)
		if err != nil {
			log.Fatal().Err(err).Msg("render tree")
		}
		if err = os.WriteFile(*dotPath, []byte(dot), 0o644); err != nil {
			log.Fatal().Err(err).Msg("write tree")
		}
	}
}

// lastSearcher returns the agent that made the last move of the final game.
func lastSearcher(az *alphafour.AZ) *alphafour.Agent {
	return az.Agent(az.State().Turn().Opponent())
}
