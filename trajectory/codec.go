// Package trajectory stores self-play examples.
//
// A trajectory file is a plain concatenation of records, all integers little-endian:
//
//	uint64 n, n bytes        board cells, row-major (0 empty, 1 yellow, 2 red)
//	uint8                    player to move
//	uint64 m, m float32      visit distribution over the action space
//	int8                     outcome: +1 yellow won, -1 red won, 0 draw
//
// There is no header or trailer; a file is read record by record until EOF.
package trajectory

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// ErrCorrupt is returned for a record that cannot have been written completely.
var ErrCorrupt = errors.New("trajectory: corrupt record")

// maxLen bounds the length prefixes so a corrupt prefix does not turn into a huge allocation.
const maxLen = 1 << 20

// Example is one recorded position of a self-play game.
type Example struct {
	Board   []uint8
	Mover   uint8
	Policy  []float32
	Outcome int8
}

// WriteExample appends one record to w.
func WriteExample(w io.Writer, ex Example) error {
	buf := make([]byte, 0, 8+len(ex.Board)+1+8+4*len(ex.Policy)+1)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(ex.Board)))
	buf = append(buf, ex.Board...)
	buf = append(buf, ex.Mover)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(ex.Policy)))
	for _, p := range ex.Policy {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(p))
	}
	buf = append(buf, uint8(ex.Outcome))
	_, err := w.Write(buf)
	return errors.WithStack(err)
}

// ReadExample reads one record. It returns io.EOF when r is exhausted exactly at a record boundary
// and ErrCorrupt for a zero-length board or a record cut short.
func ReadExample(r io.Reader) (Example, error) {
	var ex Example
	var scratch [8]byte

	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		if err == io.EOF {
			return ex, io.EOF
		}
		return ex, errors.Wrap(ErrCorrupt, "board length")
	}
	n := binary.LittleEndian.Uint64(scratch[:])
	if n == 0 {
		return ex, errors.Wrap(ErrCorrupt, "empty board")
	}
	if n > maxLen {
		return ex, errors.Wrapf(ErrCorrupt, "board length %d", n)
	}
	ex.Board = make([]uint8, n)
	if _, err := io.ReadFull(r, ex.Board); err != nil {
		return ex, errors.Wrap(ErrCorrupt, "board")
	}

	if _, err := io.ReadFull(r, scratch[:1]); err != nil {
		return ex, errors.Wrap(ErrCorrupt, "mover")
	}
	ex.Mover = scratch[0]

	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return ex, errors.Wrap(ErrCorrupt, "policy length")
	}
	m := binary.LittleEndian.Uint64(scratch[:])
	if m > maxLen {
		return ex, errors.Wrapf(ErrCorrupt, "policy length %d", m)
	}
	raw := make([]byte, 4*m)
	if _, err := io.ReadFull(r, raw); err != nil {
		return ex, errors.Wrap(ErrCorrupt, "policy")
	}
	ex.Policy = make([]float32, m)
	for i := range ex.Policy {
		ex.Policy[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}

	if _, err := io.ReadFull(r, scratch[:1]); err != nil {
		return ex, errors.Wrap(ErrCorrupt, "outcome")
	}
	ex.Outcome = int8(scratch[0])
	return ex, nil
}

// WriteAll writes the examples back to back.
func WriteAll(w io.Writer, examples []Example) error {
	bw := bufio.NewWriter(w)
	for _, ex := range examples {
		if err := WriteExample(bw, ex); err != nil {
			return err
		}
	}
	return errors.WithStack(bw.Flush())
}

// ReadAll reads records until EOF.
func ReadAll(r io.Reader) ([]Example, error) {
	br := bufio.NewReader(r)
	var retVal []Example
	for {
		ex, err := ReadExample(br)
		if err == io.EOF {
			return retVal, nil
		}
		if err != nil {
			return retVal, errors.Wrapf(err, "record %d", len(retVal))
		}
		retVal = append(retVal, ex)
	}
}
