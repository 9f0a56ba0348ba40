package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"
)

func sampleRows() []SolveRow {
	return []SolveRow{
		{
			Level:     "level01",
			Solved:    true,
			Moves:     16,
			Expected:  16,
			Visited:   22834,
			Expanded:  20112,
			Bytes:     51234,
			PackedLen: 3,
			ElapsedMs: 412,
			Depths: []DepthRow{
				{Depth: 1, Frontier: 1, Emitted: 3, Unique: 3, Shards: 1, RunBytes: 18, ElapsedMs: 1},
				{Depth: 2, Frontier: 3, Emitted: 9, Unique: 7, Shards: 1, RunBytes: 31, ElapsedMs: 1},
			},
		},
		{
			Level:    "level99",
			Solved:   false,
			Moves:    0,
			Expected: -1,
			Visited:  12,
			Depths:   []DepthRow{{Depth: 1, Frontier: 1}},
		},
	}
}

func TestWriteSolveParquetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rows := sampleRows()

	path, err := WriteSolveParquet(dir, rows)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(filepath.Base(path), "solves_"))

	back, err := parquet.ReadFile[SolveRow](path)
	require.NoError(t, err)
	require.Len(t, back, len(rows))
	require.Equal(t, rows[0].Level, back[0].Level)
	require.Equal(t, rows[0].Moves, back[0].Moves)
	require.Equal(t, rows[0].Visited, back[0].Visited)
	require.Len(t, back[0].Depths, 2)
	require.Equal(t, rows[0].Depths[1].Unique, back[0].Depths[1].Unique)
	require.False(t, back[1].Solved)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteSolveParquet(dir, sampleRows())
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "tmp"))
	require.NoError(t, err)
	require.Empty(t, entries)
}
