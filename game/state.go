package game

import "github.com/pkg/errors"

// Player identifies a side. The numeric values double as cell values on the board.
type Player uint8

const (
	None Player = iota
	Yellow
	Red
)

const (
	DefaultRows = 6
	DefaultCols = 7

	// NoMove is the LastMove of a position without history and the move of a root node.
	NoMove int32 = -1
)

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrNoHistory   = errors.New("no move to undo")
)

// Opponent returns the other side. None has no opponent.
func (p Player) Opponent() Player {
	switch p {
	case Yellow:
		return Red
	case Red:
		return Yellow
	}
	return None
}

func (p Player) String() string {
	switch p {
	case None:
		return "None"
	case Yellow:
		return "Yellow"
	case Red:
		return "Red"
	}
	return "UNKNOWN PLAYER"
}

// Config describes the board dimensions.
type Config struct {
	Rows int `json:"rows" yaml:"rows"`
	Cols int `json:"cols" yaml:"cols"`
}

func DefaultConfig() Config {
	return Config{Rows: DefaultRows, Cols: DefaultCols}
}

func (c Config) IsValid() bool {
	return c.Rows >= 4 && c.Cols >= 4 && c.Rows <= 255 && c.Cols <= 255
}

// State is any game that implements these and are able to report back
type State interface {
	// These methods represent the game state
	ActionSpace() int // returns the number of permissible actions
	Rows() int
	Cols() int
	Board() []uint8   // flattened board, row-major, row 0 is the top row.
	Turn() Player     // Turn returns the player to move next.
	MoveNumber() int  // returns count of moves so far that led to this point.
	LastMove() int32  // returns the last move that was made, NoMove if none.
	LegalMoves() []int32

	// Meta-game stuff
	Ended() (ended bool, winner Player) // has the game ended? if yes, then who's the winner?
	Winner() Player                     // the player that completed four in a row, None otherwise.

	// interactions
	Check(m int32) bool   // check if the placement is legal.
	Apply(m int32) error  // mutates the state in place. The required side effect is the Turn has to change.
	UndoLastMove() error  // reverts the last Apply.
	Reset()               // reset state.

	// generics
	Eq(other State) bool
	Clone() State
	String() string
}
