package trajectory

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func sampleExamples() []Example {
	board := make([]uint8, 42)
	board[38] = 1
	return []Example{
		{
			Board:   make([]uint8, 42),
			Mover:   1,
			Policy:  []float32{0.1, 0.1, 0.1, 0.4, 0.1, 0.1, 0.1},
			Outcome: 1,
		},
		{
			Board:   board,
			Mover:   2,
			Policy:  []float32{0, 0.25, 0, 0.5, 0, 0.25, 0},
			Outcome: -1,
		},
		{
			Board:   board,
			Mover:   2,
			Policy:  []float32{1, 0, 0, 0, 0, 0, 0},
			Outcome: 0,
		},
	}
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(Config{Dir: filepath.Join(t.TempDir(), "memory"), OldDir: "old"}, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return s
}

func TestRecordLayout(t *testing.T) {
	var buf bytes.Buffer
	ex := Example{Board: []uint8{1, 2, 0}, Mover: 2, Policy: []float32{0.5, 0.5}, Outcome: -1}
	require.NoError(t, WriteExample(&buf, ex))

	raw := buf.Bytes()
	require.Len(t, raw, 8+3+1+8+2*4+1)
	assert.Equal(t, uint64(3), binary.LittleEndian.Uint64(raw[0:8]))
	assert.Equal(t, []byte{1, 2, 0}, raw[8:11])
	assert.Equal(t, byte(2), raw[11])
	assert.Equal(t, uint64(2), binary.LittleEndian.Uint64(raw[12:20]))
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x3f}, raw[20:24], "0.5 as float32 little-endian")
	assert.Equal(t, byte(0xff), raw[len(raw)-1], "-1 as a signed byte")
}

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	examples := sampleExamples()
	require.NoError(t, WriteAll(&buf, examples))

	got, err := ReadAll(&buf)
	require.NoError(t, err)
	assert.Equal(t, examples, got)

	empty, err := ReadAll(new(bytes.Buffer))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ReadExample(new(bytes.Buffer))
	assert.Equal(t, io.EOF, err)
}

func TestCorruptRecords(t *testing.T) {
	var good bytes.Buffer
	require.NoError(t, WriteAll(&good, sampleExamples()[:1]))
	full := good.Bytes()

	t.Run("zero length board", func(t *testing.T) {
		raw := make([]byte, 8)
		_, err := ReadExample(bytes.NewReader(raw))
		assert.Equal(t, ErrCorrupt, errors.Cause(err))
	})

	for _, cut := range []int{3, 8, 20, 50, 51, 58, 70, len(full) - 1} {
		_, err := ReadExample(bytes.NewReader(full[:cut]))
		assert.Equal(t, ErrCorrupt, errors.Cause(err), "cut at %d", cut)
	}

	t.Run("absurd length", func(t *testing.T) {
		raw := binary.LittleEndian.AppendUint64(nil, 1<<40)
		_, err := ReadExample(bytes.NewReader(raw))
		assert.Equal(t, ErrCorrupt, errors.Cause(err))
	})

	t.Run("valid records before the corrupt one", func(t *testing.T) {
		raw := append(append([]byte{}, full...), make([]byte, 8)...)
		got, err := ReadAll(bytes.NewReader(raw))
		assert.Equal(t, ErrCorrupt, errors.Cause(err))
		assert.Len(t, got, 1)
	})
}

func TestStoreWriteAndLoad(t *testing.T) {
	s := testStore(t)
	r := rand.New(rand.NewSource(1))

	id := NewGameID(r)
	assert.True(t, strings.HasPrefix(id, "game-"))
	assert.NotEqual(t, id, NewGameID(r))

	path, err := s.WriteGame(id, sampleExamples())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir, id+".bin"), path)

	_, err = s.WriteGame(NewGameID(r), sampleExamples()[:1])
	require.NoError(t, err)

	entries, err := os.ReadDir(s.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files are left behind")

	files, err := s.Files()
	require.NoError(t, err)
	assert.Len(t, files, 2)

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleExamples(), got)

	all, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, all, 4)

	t.Run("same id", func(t *testing.T) {
		_, err := s.WriteGame(id, sampleExamples()[2:])
		require.Error(t, err)
		assert.Equal(t, ErrGameExists, errors.Cause(err))

		got, err := ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, sampleExamples(), got, "the first game is kept")
		entries, err := os.ReadDir(s.Dir)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
}

func TestStoreLoadCorrupt(t *testing.T) {
	s := testStore(t)
	require.NoError(t, os.MkdirAll(s.Dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir, "game-1-1.bin"), make([]byte, 8), 0o644))
	_, err := s.Load()
	assert.Equal(t, ErrCorrupt, errors.Cause(err))
}

func TestStoreArchive(t *testing.T) {
	s := testStore(t)
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 3; i++ {
		_, err := s.WriteGame(NewGameID(r), sampleExamples())
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir, "notes.txt"), []byte("keep"), 0o644))

	require.NoError(t, s.Archive())
	files, err := s.Files()
	require.NoError(t, err)
	assert.Empty(t, files)

	old, err := filepath.Glob(filepath.Join(s.Dir, "old", "*.bin"))
	require.NoError(t, err)
	assert.Len(t, old, 3)
	assert.FileExists(t, filepath.Join(s.Dir, "notes.txt"))

	// nothing left to move
	require.NoError(t, s.Archive())
}

func TestStoreMissingDir(t *testing.T) {
	s := testStore(t)
	files, err := s.Files()
	require.NoError(t, err)
	assert.Empty(t, files)
	all, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.NoError(t, s.Archive())
}

func TestStoreConfig(t *testing.T) {
	assert.True(t, DefaultConfig().IsValid())
	_, err := NewStore(Config{})
	assert.Error(t, err)
}

func TestParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export", "examples.parquet")
	require.NotPanics(t, func() {
		require.NoError(t, ExportParquet(path, sampleExamples()))
	})
	assert.NoFileExists(t, path+".tmp")

	got, err := ReadParquet(path)
	require.NoError(t, err)
	assert.Equal(t, sampleExamples(), got)

	_, err = ReadParquet(filepath.Join(t.TempDir(), "missing.parquet"))
	assert.Error(t, err)

	t.Run("small ints", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "one.parquet")
		ex := []Example{{Board: []uint8{0, 1, 2}, Mover: 1, Policy: []float32{0.5, 0.5}, Outcome: -1}}
		require.NoError(t, ExportParquet(path, ex))
		got, err := ReadParquet(path)
		require.NoError(t, err)
		assert.Equal(t, ex, got)
	})
}
