package structio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steenlysgaard/texase/internal/asedb"
)

func frame(energy float64) *asedb.Atoms {
	return &asedb.Atoms{
		Numbers:   []int{29, 29},
		Positions: [][3]float64{{0, 0, 0}, {1.8, 1.8, 0}},
		Cell:      [3][3]float64{{3.6, 0, 0}, {0, 3.6, 0}, {0, 0, 3.6}},
		PBC:       [3]bool{true, true, true},
		Energy:    &energy,
		Forces:    [][3]float64{{0.1, 0, 0}, {-0.1, 0, 0}},
		KeyValuePairs: map[string]any{
			"relaxed": true,
			"step":    int64(2),
			"tag":     "bulk fcc",
			"weight":  2.0,
		},
	}
}

func TestXYZRoundTrip(t *testing.T) {
	for _, name := range []string{"out.xyz", "out.extxyz.gz", "out.xyz.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, Write(path, []*asedb.Atoms{frame(-1), frame(-2), frame(-3)}, false))

			all, err := Read(path, ":")
			require.NoError(t, err)
			require.Len(t, all, 3)

			a := all[1]
			assert.Equal(t, []int{29, 29}, a.Numbers)
			assert.Equal(t, 1.8, a.Positions[1][0])
			assert.Equal(t, 3.6, a.Cell[2][2])
			assert.Equal(t, [3]bool{true, true, true}, a.PBC)
			require.NotNil(t, a.Energy)
			assert.Equal(t, -2.0, *a.Energy)
			assert.Equal(t, -0.1, a.Forces[1][0])
			assert.Equal(t, true, a.KeyValuePairs["relaxed"])
			assert.Equal(t, int64(2), a.KeyValuePairs["step"])
			assert.Equal(t, "bulk fcc", a.KeyValuePairs["tag"])
			assert.Equal(t, 2.0, a.KeyValuePairs["weight"])

			last, err := Read(path, "")
			require.NoError(t, err)
			require.Len(t, last, 1)
			assert.Equal(t, -3.0, *last[0].Energy)
		})
	}
}

func TestXYZAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traj.xyz")
	require.NoError(t, Write(path, []*asedb.Atoms{frame(-1)}, false))
	require.NoError(t, Write(path, []*asedb.Atoms{frame(-2)}, true))
	all, err := Read(path, ":")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPlainXYZ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "water.xyz")
	content := "3\nwater molecule\nO 0 0 0\nH 0.76 0.59 0\nH -0.76 0.59 0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	frames, err := Read(path, "0")
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "H2O", frames[0].Formula())
	assert.Nil(t, frames[0].KeyValuePairs)
}

func TestMalformed(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.xyz")
	require.NoError(t, os.WriteFile(bad, []byte("3\ncomment\nO 0 0 0\n"), 0644))
	_, err := Read(bad, "")
	assert.ErrorIs(t, err, ErrMalformed)

	unknown := filepath.Join(dir, "bad.xyz")
	require.NoError(t, os.WriteFile(unknown, []byte("1\n\nXx 0 0 0\n"), 0644))
	_, err = Read(unknown, "")
	assert.ErrorIs(t, err, ErrMalformed)

	for name, content := range map[string]string{
		"narrow.xyz": "1\nProperties=species:S:1:pos:R:2\nH 0 0\n",
		"forces.xyz": "1\nProperties=species:S:1:pos:R:3:forces:R:1\nH 0 0 0 1\n",
		"huge.xyz":   "100000000000000\ncomment\nH 0 0 0\n",
		"short.pdb":  "ATOM\nEND\n",
		"cryst1.pdb": "CRYST1\nEND\n",
	} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
		assert.NotPanics(t, func() {
			_, err = Read(p, ":")
		}, name)
		assert.ErrorIs(t, err, ErrMalformed, name)
	}

	_, err = Read(filepath.Join(dir, "file.cif"), "")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Read(filepath.Join(dir, "missing.xyz"), "")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPDBRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cu.pdb")
	require.NoError(t, Write(path, []*asedb.Atoms{frame(0), frame(0)}, false))
	frames, err := Read(path, ":")
	require.NoError(t, err)
	require.Len(t, frames, 2)
	a := frames[0]
	assert.Equal(t, []int{29, 29}, a.Numbers)
	assert.InDelta(t, 1.8, a.Positions[1][1], 1e-3)
	assert.InDelta(t, 3.6, a.Cell[1][1], 1e-3)
	assert.InDelta(t, 0, a.Cell[1][0], 1e-9)
	assert.Equal(t, [3]bool{true, true, true}, a.PBC)
}

func TestSelectFrames(t *testing.T) {
	cases := []struct {
		index string
		want  []int
	}{
		{"", []int{4}},
		{"-1", []int{4}},
		{"0", []int{0}},
		{"-2", []int{3}},
		{":", []int{0, 1, 2, 3, 4}},
		{"1:3", []int{1, 2}},
		{":2", []int{0, 1}},
		{"::2", []int{0, 2, 4}},
		{"::-1", []int{4, 3, 2, 1, 0}},
		{"-2:", []int{3, 4}},
		{"3:100", []int{3, 4}},
	}
	for _, c := range cases {
		got, err := selectFrames(c.index, 5)
		require.NoError(t, err, c.index)
		assert.Equal(t, c.want, got, c.index)
	}
	for _, bad := range []string{"5", "-6", "a", "::0", "1:2:3:4"} {
		_, err := selectFrames(bad, 5)
		assert.ErrorIs(t, err, ErrBadIndex, bad)
	}
}

func TestReadEmptySelection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "two.xyz")
	require.NoError(t, Write(path, []*asedb.Atoms{frame(0), frame(1)}, false))
	_, err := Read(path, "1:1")
	assert.ErrorIs(t, err, ErrBadIndex)
	frames, err := Read(path, "1:")
	require.NoError(t, err)
	assert.Len(t, frames, 1)
}

func TestSplitIndex(t *testing.T) {
	p, i := SplitIndex("traj.xyz@:")
	assert.Equal(t, "traj.xyz", p)
	assert.Equal(t, ":", i)
	p, i = SplitIndex("dir@home/traj.xyz")
	assert.Equal(t, "dir@home/traj.xyz", p)
	assert.Equal(t, "", i)
	p, i = SplitIndex("a.pdb@-1")
	assert.Equal(t, "a.pdb", p)
	assert.Equal(t, "-1", i)
}

func TestCanRead(t *testing.T) {
	assert.True(t, CanRead("x.xyz"))
	assert.True(t, CanRead("X.PDB.gz"))
	assert.True(t, CanWrite("x.extxyz.zst"))
	assert.False(t, CanRead("x.traj"))
	assert.Contains(t, ReadableExtensions(), ".xyz.gz")
}
