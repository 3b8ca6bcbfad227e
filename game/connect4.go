package game

import (
	"strings"

	"github.com/pkg/errors"
)

// cell is a placed piece, kept in the history for undo and win detection.
type cell struct {
	row, col int
	player   Player
}

// Connect4 is a Connect Four position. Pieces drop to the lowest empty row of a column.
// Yellow always moves first.
type Connect4 struct {
	rows, cols int
	board      []Player
	turn       Player
	winner     Player
	history    []cell
}

// NewConnect4 returns the empty starting position.
func NewConnect4(conf Config) (*Connect4, error) {
	if !conf.IsValid() {
		return nil, errors.Errorf("invalid board %dx%d: rows and cols must both be at least 4", conf.Rows, conf.Cols)
	}
	g := &Connect4{rows: conf.Rows, cols: conf.Cols}
	g.Reset()
	return g, nil
}

// FromBoard builds a position from a flattened row-major board. The side to move is derived
// from the piece counts: Red moves when Yellow has more pieces on the board.
//
// The history is rebuilt bottom-up, which is enough for undo and for win detection of
// subsequent moves, but not necessarily the order the moves were actually played in.
func FromBoard(board []uint8, rows, cols int) (*Connect4, error) {
	g, err := NewConnect4(Config{Rows: rows, Cols: cols})
	if err != nil {
		return nil, err
	}
	if len(board) != rows*cols {
		return nil, errors.Errorf("board has %d cells, expected %d", len(board), rows*cols)
	}

	var yellows, reds int
	for i, v := range board {
		switch Player(v) {
		case None:
		case Yellow:
			yellows++
		case Red:
			reds++
		default:
			return nil, errors.Errorf("cell %d holds %d, expected 0, 1 or 2", i, v)
		}
		g.board[i] = Player(v)
	}

	for c := 0; c < cols; c++ {
		for r := rows - 1; r >= 0; r-- {
			p := g.at(r, c)
			if p == None {
				// nothing may float above an empty cell
				for above := r - 1; above >= 0; above-- {
					if g.at(above, c) != None {
						return nil, errors.Errorf("floating piece at row %d col %d", above, c)
					}
				}
				break
			}
			g.history = append(g.history, cell{row: r, col: c, player: p})
		}
	}

	if yellows > reds {
		g.turn = Red
	}
	for _, h := range g.history {
		if g.connected4(h) {
			g.winner = h.player
			break
		}
	}
	return g, nil
}

func (g *Connect4) ActionSpace() int { return g.cols }
func (g *Connect4) Rows() int        { return g.rows }
func (g *Connect4) Cols() int        { return g.cols }
func (g *Connect4) Turn() Player     { return g.turn }
func (g *Connect4) MoveNumber() int  { return len(g.history) }
func (g *Connect4) Winner() Player   { return g.winner }

func (g *Connect4) LastMove() int32 {
	if len(g.history) == 0 {
		return NoMove
	}
	return int32(g.history[len(g.history)-1].col)
}

func (g *Connect4) Board() []uint8 {
	retVal := make([]uint8, len(g.board))
	for i, p := range g.board {
		retVal[i] = uint8(p)
	}
	return retVal
}

// Check returns true if the top cell of the column is still empty.
func (g *Connect4) Check(m int32) bool {
	if m < 0 || int(m) >= g.cols {
		return false
	}
	return g.at(0, int(m)) == None
}

func (g *Connect4) LegalMoves() []int32 {
	retVal := make([]int32, 0, g.cols)
	for c := 0; c < g.cols; c++ {
		if g.Check(int32(c)) {
			retVal = append(retVal, int32(c))
		}
	}
	return retVal
}

// Ended reports whether someone connected four or the board is full.
func (g *Connect4) Ended() (bool, Player) {
	if g.winner != None {
		return true, g.winner
	}
	return len(g.history) == g.rows*g.cols, None
}

// Apply drops a piece for the player to move. The win is evaluated for the player who just
// moved, before the turn is handed to the opponent.
func (g *Connect4) Apply(m int32) error {
	if !g.Check(m) {
		return errors.Wrapf(ErrIllegalMove, "column %d", m)
	}
	col := int(m)
	row := g.rows - 1
	for g.at(row, col) != None {
		row--
	}
	c := cell{row: row, col: col, player: g.turn}
	g.board[row*g.cols+col] = g.turn
	g.history = append(g.history, c)

	if g.winner == None && g.connected4(c) {
		g.winner = g.turn
	}
	g.turn = g.turn.Opponent()
	return nil
}

func (g *Connect4) UndoLastMove() error {
	if len(g.history) == 0 {
		return ErrNoHistory
	}
	last := g.history[len(g.history)-1]
	g.history = g.history[:len(g.history)-1]
	g.board[last.row*g.cols+last.col] = None
	g.turn = last.player

	g.winner = None
	for _, h := range g.history {
		if g.connected4(h) {
			g.winner = h.player
			break
		}
	}
	return nil
}

func (g *Connect4) Reset() {
	g.board = make([]Player, g.rows*g.cols)
	g.history = g.history[:0]
	g.turn = Yellow
	g.winner = None
}

func (g *Connect4) Clone() State {
	retVal := &Connect4{
		rows:    g.rows,
		cols:    g.cols,
		board:   make([]Player, len(g.board)),
		turn:    g.turn,
		winner:  g.winner,
		history: make([]cell, len(g.history)),
	}
	copy(retVal.board, g.board)
	copy(retVal.history, g.history)
	return retVal
}

// Eq compares board contents and the side to move.
func (g *Connect4) Eq(other State) bool {
	if other == nil || g.rows != other.Rows() || g.cols != other.Cols() || g.turn != other.Turn() {
		return false
	}
	ob := other.Board()
	for i, p := range g.board {
		if uint8(p) != ob[i] {
			return false
		}
	}
	return true
}

func (g *Connect4) String() string {
	var sb strings.Builder
	for r := 0; r < g.rows; r++ {
		for c := 0; c < g.cols; c++ {
			sb.WriteByte(symbol(g.at(r, c)))
			sb.WriteByte(' ')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("Current player: ")
	sb.WriteString(g.turn.String())
	return sb.String()
}

func (g *Connect4) at(row, col int) Player { return g.board[row*g.cols+col] }

// connected4 checks the four lines running through c.
func (g *Connect4) connected4(c cell) bool {
	directions := [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}
	for _, d := range directions {
		n := 1 + g.count(c, d[0], d[1]) + g.count(c, -d[0], -d[1])
		if n >= 4 {
			return true
		}
	}
	return false
}

// count counts consecutive pieces of c.player starting next to c in direction (dr, dc).
func (g *Connect4) count(c cell, dr, dc int) (retVal int) {
	r, col := c.row+dr, c.col+dc
	for r >= 0 && r < g.rows && col >= 0 && col < g.cols && g.at(r, col) == c.player {
		retVal++
		r += dr
		col += dc
	}
	return
}

func symbol(p Player) byte {
	switch p {
	case Yellow:
		return 'Y'
	case Red:
		return 'R'
	}
	return '.'
}
