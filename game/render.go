package game

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// Render draws the board with coloured pieces. The colour profile is taken from w, so
// non-terminal writers get plain text.
func Render(w io.Writer, s State, opts ...termenv.OutputOption) error {
	out := termenv.NewOutput(w, opts...)
	yellow := out.Color("3")
	red := out.Color("1")

	var sb strings.Builder
	board := s.Board()
	for r := 0; r < s.Rows(); r++ {
		for c := 0; c < s.Cols(); c++ {
			switch Player(board[r*s.Cols()+c]) {
			case Yellow:
				sb.WriteString(out.String("Y").Foreground(yellow).String())
			case Red:
				sb.WriteString(out.String("R").Foreground(red).String())
			default:
				sb.WriteByte('.')
			}
			sb.WriteByte(' ')
		}
		sb.WriteByte('\n')
	}
	for c := 0; c < s.Cols(); c++ {
		fmt.Fprintf(&sb, "%d ", c%10)
	}
	sb.WriteByte('\n')

	if ended, winner := s.Ended(); ended {
		fmt.Fprintf(&sb, "Game over. Winner: %v\n", winner)
	} else {
		fmt.Fprintf(&sb, "Current player: %v\n", s.Turn())
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
