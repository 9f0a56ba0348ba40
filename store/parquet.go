// Package store archives solver output as parquet files for offline
// analysis. One row per solved puzzle, with the per-depth search
// statistics nested inside it.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// SolveRow is the archive record for one puzzle attempt.
//
// Moves is 0 when the state space was exhausted without a win. Expected
// is the catalogued optimal move count, or -1 when unknown.
type SolveRow struct {
	Level     string `parquet:"level,dict"`
	Solved    bool   `parquet:"solved"`
	Moves     int32  `parquet:"moves"`
	Expected  int32  `parquet:"expected"`
	Visited   int64  `parquet:"visited"`
	Expanded  int64  `parquet:"expanded"`
	Bytes     int64  `parquet:"bytes"`
	PackedLen int32  `parquet:"packed_len"`
	ElapsedMs int64  `parquet:"elapsed_ms"`

	Depths []DepthRow `parquet:"depths"`
}

// DepthRow is one frontier expansion within a solve.
type DepthRow struct {
	Depth     int32 `parquet:"depth"`
	Frontier  int64 `parquet:"frontier"`
	Emitted   int64 `parquet:"emitted"`
	Unique    int64 `parquet:"unique"`
	Shards    int32 `parquet:"shards"`
	RunBytes  int64 `parquet:"run_bytes"`
	ElapsedMs int64 `parquet:"elapsed_ms"`
}

// WriteSolveParquet writes rows into outDir as a timestamped parquet
// file, staging in outDir/tmp and renaming so readers never observe a
// partial file. The final path is returned.
func WriteSolveParquet(outDir string, rows []SolveRow) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("solves_%d.parquet", time.Now().UnixNano())
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", "solve_result_v1"),
	); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}

	return finalPath, nil
}
