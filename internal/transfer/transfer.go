// Package transfer moves structures between the database and structure
// files: import, export and the temporary snapshots handed to a viewer.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"

	"github.com/steenlysgaard/texase/internal/asedb"
	"github.com/steenlysgaard/texase/internal/structio"
	"github.com/steenlysgaard/texase/internal/table"
)

var (
	ErrRead   = errors.New("could not read structure file")
	ErrWrite  = errors.New("could not write structure file")
	ErrExists = errors.New("file exists")
)

// Import reads "file@index" and writes every selected frame in a single
// transaction. Nothing is written when reading fails.
func Import(ctx context.Context, db *asedb.DB, spec string) ([]int64, error) {
	path, index := structio.SplitIndex(spec)
	if path == "" {
		return nil, fmt.Errorf("%w: no file given", ErrRead)
	}
	frames, err := structio.Read(path, index)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	for i, a := range frames {
		a.KeyValuePairs = keepValid(a.KeyValuePairs, path, i)
	}
	ids, err := db.Write(ctx, frames...)
	if err != nil {
		return nil, err
	}
	slog.Info("imported", "file", path, "index", index, "rows", len(ids))
	return ids, nil
}

// keepValid drops key-value pairs the database would refuse.
func keepValid(kvp map[string]any, path string, frame int) map[string]any {
	if len(kvp) == 0 {
		return nil
	}
	out := maps.Clone(kvp)
	for k, v := range kvp {
		if err := asedb.CheckKeyValue(k, v); err != nil {
			slog.Debug("skipping key", "file", path, "frame", frame, "key", k, "err", err)
			delete(out, k)
		}
	}
	return out
}

// Export writes rows ids to path. An existing file is only replaced when
// overwrite is set.
func Export(ctx context.Context, db *asedb.DB, ids []int64, path string, overwrite bool) error {
	if len(ids) == 0 {
		return table.ErrNothingSelected
	}
	if !structio.CanWrite(path) {
		return fmt.Errorf("%w: %w: %s", ErrWrite, structio.ErrUnknownFormat, path)
	}
	if _, err := os.Stat(path); err == nil && !overwrite {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}
	frames, err := collect(ctx, db, ids)
	if err != nil {
		return err
	}
	if err := structio.Write(path, frames, false); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	slog.Info("exported", "file", path, "rows", len(ids))
	return nil
}

// Snapshot writes rows ids to a new temporary extxyz file in dir (the
// system temp dir when empty) and returns its path.
func Snapshot(ctx context.Context, db *asedb.DB, ids []int64, dir string) (string, error) {
	if len(ids) == 0 {
		return "", table.ErrNothingSelected
	}
	frames, err := collect(ctx, db, ids)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "texase-*.extxyz")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrWrite, err)
	}
	path := f.Name()
	f.Close()
	if err := structio.Write(path, frames, false); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return path, nil
}

func collect(ctx context.Context, db *asedb.DB, ids []int64) ([]*asedb.Atoms, error) {
	frames := make([]*asedb.Atoms, 0, len(ids))
	for _, id := range ids {
		a, err := db.Atoms(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", id, err)
		}
		frames = append(frames, a)
	}
	return frames, nil
}
