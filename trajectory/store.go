package trajectory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
)

const ext = ".bin"

// Config locates the trajectory files.
type Config struct {
	Dir    string `json:"dir" yaml:"dir"`         // memory folder holding one file per game
	OldDir string `json:"old_dir" yaml:"old_dir"` // subfolder of Dir that Archive moves consumed files into
}

func DefaultConfig() Config {
	return Config{Dir: "memory", OldDir: "old"}
}

func (c Config) IsValid() bool {
	return c.Dir != "" && c.OldDir != "" && !filepath.IsAbs(c.OldDir)
}

type Option func(s *Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// ErrGameExists is returned by WriteGame when the game id is already taken.
var ErrGameExists = errors.New("trajectory: game already stored")

// Store is a directory of trajectory files, one per game. Different games never share a file, so
// several writers may use the same directory.
type Store struct {
	Config
	logger zerolog.Logger
}

func NewStore(conf Config, opts ...Option) (*Store, error) {
	if !conf.IsValid() {
		return nil, errors.Errorf("invalid store config %+v", conf)
	}
	s := &Store{Config: conf, logger: log.Logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewGameID returns a file stem that is unique across concurrent writers.
func NewGameID(r *rand.Rand) string {
	return fmt.Sprintf("game-%d-%d", time.Now().Unix(), r.Uint32())
}

// WriteGame writes the examples of one game to <Dir>/<id>.bin. The file only appears once it is
// complete, so readers never see a partial game. An existing file is never overwritten.
func (s *Store) WriteGame(id string, examples []Example) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create memory folder")
	}
	path := filepath.Join(s.Dir, id+ext)
	tmp, err := os.CreateTemp(s.Dir, "."+id+"-*.tmp")
	if err != nil {
		return "", errors.Wrap(err, "create temporary file")
	}
	defer os.Remove(tmp.Name())

	if err = WriteAll(tmp, examples); err != nil {
		tmp.Close()
		return "", errors.Wrapf(err, "write %s", path)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return "", errors.WithStack(err)
	}
	if err = tmp.Close(); err != nil {
		return "", errors.WithStack(err)
	}
	// link instead of rename so an existing game with the same id is never replaced
	if err = os.Link(tmp.Name(), path); err != nil {
		if os.IsExist(err) {
			return "", errors.Wrapf(ErrGameExists, "%s", path)
		}
		return "", errors.Wrapf(err, "link to %s", path)
	}
	s.logger.Info().Str("file", path).Int("examples", len(examples)).Msg("saved game")
	return path, nil
}

// Files lists the trajectory files in Dir, sorted by name.
func (s *Store) Files() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	var retVal []string
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) == ext {
			retVal = append(retVal, filepath.Join(s.Dir, e.Name()))
		}
	}
	sort.Strings(retVal)
	return retVal, nil
}

// ReadFile reads every example of one trajectory file.
func ReadFile(path string) ([]Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	examples, err := ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return examples, nil
}

// Load reads every trajectory file in Dir. A corrupt file fails the whole load.
func (s *Store) Load() ([]Example, error) {
	files, err := s.Files()
	if err != nil {
		return nil, err
	}
	var retVal []Example
	for _, f := range files {
		examples, err := ReadFile(f)
		if err != nil {
			return nil, err
		}
		retVal = append(retVal, examples...)
	}
	s.logger.Info().Int("files", len(files)).Int("examples", len(retVal)).Msg("loaded memory")
	return retVal, nil
}

// Archive moves every trajectory file into the old folder. Files that fail to move are reported
// together and the rest are still moved.
func (s *Store) Archive() error {
	files, err := s.Files()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}
	old := filepath.Join(s.Dir, s.OldDir)
	if err := os.MkdirAll(old, 0o755); err != nil {
		return errors.Wrap(err, "create archive folder")
	}
	var errs error
	var moved int
	for _, f := range files {
		if err := os.Rename(f, filepath.Join(old, filepath.Base(f))); err != nil {
			errs = multierror.Append(errs, errors.WithStack(err))
			continue
		}
		moved++
	}
	s.logger.Info().Int("files", moved).Str("to", old).Msg("archived memory")
	return errs
}
