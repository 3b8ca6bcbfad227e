package trajectory

import (
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
	"github.com/pkg/errors"
)

// row is the parquet layout of an Example. Parquet has no 8 bit integer columns, so the mover and
// the outcome are widened.
type row struct {
	Board   []byte    `parquet:"board"`
	Mover   int32     `parquet:"mover"`
	Policy  []float32 `parquet:"policy"`
	Outcome int32     `parquet:"outcome"`
}

func toRow(ex Example) row {
	return row{Board: ex.Board, Mover: int32(ex.Mover), Policy: ex.Policy, Outcome: int32(ex.Outcome)}
}

func (r row) example() Example {
	return Example{Board: r.Board, Mover: uint8(r.Mover), Policy: r.Policy, Outcome: int8(r.Outcome)}
}

// ExportParquet writes the examples as one zstd compressed parquet file. Like WriteGame the file
// only appears once it is complete.
func ExportParquet(path string, examples []Example) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create output folder")
	}
	tmp := path + ".tmp"
	_ = os.Remove(tmp)

	rows := make([]row, len(examples))
	for i, ex := range examples {
		rows[i] = toRow(ex)
	}
	if err := parquet.WriteFile(tmp, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", "connect4_example_v1"),
	); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "write parquet")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "rename parquet")
	}
	return nil
}

// ReadParquet reads a file written by ExportParquet.
func ReadParquet(path string) ([]Example, error) {
	rows, err := parquet.ReadFile[row](path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	examples := make([]Example, len(rows))
	for i, r := range rows {
		examples[i] = r.example()
	}
	return examples, nil
}
