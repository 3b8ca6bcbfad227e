package dual

import "github.com/alphafour/game"

// Config configures the neural network
type Config struct {
	Height      int `json:"height" yaml:"height"`             // board rows
	Width       int `json:"width" yaml:"width"`               // board cols
	Features    int `json:"features" yaml:"features"`         // input planes
	ActionSpace int `json:"action_space" yaml:"action_space"` // action space
	BatchSize   int `json:"batch_size" yaml:"batch_size"`     // batch size
}

func DefaultConf(m, n, actionSpace int) Config {
	return Config{
		Height:      m,
		Width:       n,
		Features:    game.Planes,
		ActionSpace: actionSpace,
		BatchSize:   256,
	}
}

func (conf Config) IsValid() bool {
	return conf.Height >= 1 &&
		conf.Width >= 1 &&
		conf.ActionSpace >= 2 &&
		conf.BatchSize >= 1 &&
		conf.Features > 0
}

// InputSize is the length of an encoded position.
func (conf Config) InputSize() int { return conf.Features * conf.Height * conf.Width }

// fits reports whether state has the board the network was built for.
func (conf Config) fits(state game.State) bool {
	return state.Rows() == conf.Height && state.Cols() == conf.Width && state.ActionSpace() == conf.ActionSpace
}
