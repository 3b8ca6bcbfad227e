// Command export collects the self-play games in the memory folder into one Parquet file a
// trainer can read, optionally moving the games out of the way afterwards.
package main

import (
	"flag"
	"os"
	"time"

	"github.com/alphafour/trajectory"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	memoryFolder = flag.String("memory-folder", "memory", "folder holding the .bin games")
	oldFolder    = flag.String("old-folder", "old", "where -archive moves exported games")
	outPath      = flag.String("out", "examples.parquet", "Parquet file to write")
	archive      = flag.Bool("archive", false, "archive the games once exported")
)

func main() {
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	store, err := trajectory.NewStore(trajectory.Config{Dir: *memoryFolder, OldDir: *oldFolder})
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	examples, err := store.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load games")
	}
	if len(examples) == 0 {
		log.Warn().Str("dir", *memoryFolder).Msg("no examples to export")
		return
	}
	if err = trajectory.ExportParquet(*outPath, examples); err != nil {
		log.Fatal().Err(err).Msg("export")
	}
	log.Info().Int("examples", len(examples)).Str("out", *outPath).Msg("exported")

	if *archive {
		if err = store.Archive(); err != nil {
			log.Fatal().Err(err).Msg("archive")
		}
	}
}
