package transfer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steenlysgaard/texase/internal/asedb"
	"github.com/steenlysgaard/texase/internal/structio"
	"github.com/steenlysgaard/texase/internal/table"
)

func openDB(t *testing.T) *asedb.DB {
	t.Helper()
	db, err := asedb.Open(context.Background(), filepath.Join(t.TempDir(), "t.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func writeTrajectory(t *testing.T, n int) string {
	t.Helper()
	var frames []*asedb.Atoms
	for i := 0; i < n; i++ {
		e := -float64(i + 1)
		frames = append(frames, &asedb.Atoms{
			Numbers:   []int{1, 1},
			Positions: [][3]float64{{0, 0, 0}, {0, 0, 0.74}},
			Energy:    &e,
			// Cu is a chemical symbol and cannot be a key in the database
			KeyValuePairs: map[string]any{"step": int64(i), "Cu": int64(1)},
		})
	}
	path := filepath.Join(t.TempDir(), "traj.extxyz")
	require.NoError(t, structio.Write(path, frames, false))
	return path
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	path := writeTrajectory(t, 3)

	ids, err := Import(ctx, db, path+"@:")
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	ids, err = Import(ctx, db, path)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	r, err := db.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.KeyValuePairs["step"])
	assert.NotContains(t, r.KeyValuePairs, "Cu")

	n, err := db.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestImportFailureLeavesDatabase(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.xyz")
	require.NoError(t, os.WriteFile(bad, []byte("2\n\nH 0 0 0\n"), 0o644))

	for _, spec := range []string{
		filepath.Join(dir, "missing.xyz"),
		filepath.Join(dir, "notes.txt"),
		bad,
		writeTrajectory(t, 2) + "@7",
		writeTrajectory(t, 2) + "@5:5",
	} {
		_, err := Import(ctx, db, spec)
		assert.ErrorIs(t, err, ErrRead, spec)
	}
	n, err := db.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	ids, err := Import(ctx, db, writeTrajectory(t, 3)+"@:")
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.xyz.gz")
	err = Export(ctx, db, nil, out, false)
	assert.ErrorIs(t, err, table.ErrNothingSelected)
	assert.NoFileExists(t, out)

	require.NoError(t, Export(ctx, db, ids[:2], out, false))
	frames, err := structio.Read(out, ":")
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.InDelta(t, -2.0, *frames[1].Energy, 1e-9)

	assert.ErrorIs(t, Export(ctx, db, ids, out, false), ErrExists)
	require.NoError(t, Export(ctx, db, ids, out, true))
	frames, err = structio.Read(out, ":")
	require.NoError(t, err)
	assert.Len(t, frames, 3)

	assert.ErrorIs(t, Export(ctx, db, ids, filepath.Join(t.TempDir(), "out.cif"), false), ErrWrite)
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	ids, err := Import(ctx, db, writeTrajectory(t, 2)+"@:")
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := Snapshot(ctx, db, ids, dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, ".extxyz"))

	frames, err := structio.Read(path, ":")
	require.NoError(t, err)
	assert.Len(t, frames, 2)

	_, err = Snapshot(ctx, db, nil, dir)
	assert.ErrorIs(t, err, table.ErrNothingSelected)
}
