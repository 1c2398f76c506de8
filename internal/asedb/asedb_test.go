package asedb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func water() *Atoms {
	e := -14.2
	return &Atoms{
		Numbers:    []int{8, 1, 1},
		Positions:  [][3]float64{{0, 0, 0}, {0.76, 0.59, 0}, {-0.76, 0.59, 0}},
		Cell:       [3][3]float64{{10, 0, 0}, {0, 10, 0}, {0, 0, 10}},
		PBC:        [3]bool{true, true, false},
		Energy:     &e,
		Forces:     [][3]float64{{0, 0, 0.3}, {0, 0.4, 0}, {0, 0, 0}},
		Calculator: "emt",
		KeyValuePairs: map[string]any{
			"relaxed": true,
			"step":    int64(3),
			"label":   "water",
			"weight":  1.0,
		},
		Data: map[string]any{"note": "hello"},
	}
}

func TestWriteAndSelect(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)

	ids, err := db.Write(ctx, water(), water())
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, ids)

	n, err := db.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := db.Select(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	r := rows[0]
	assert.Equal(t, "H2O", r.Formula())
	assert.Len(t, r.UniqueID, 32)
	assert.Equal(t, [3]bool{true, true, false}, r.PBC)
	assert.Equal(t, "emt", r.Calculator)
	require.NotNil(t, r.Volume)
	assert.InDelta(t, 1000.0, *r.Volume, 1e-9)
	require.NotNil(t, r.Fmax)
	assert.InDelta(t, 0.4, *r.Fmax, 1e-12)
	assert.Equal(t, true, r.KeyValuePairs["relaxed"])
	assert.Equal(t, int64(3), r.KeyValuePairs["step"])
	assert.Equal(t, 1.0, r.KeyValuePairs["weight"])
	assert.Equal(t, []string{"label", "relaxed", "step", "weight"}, r.UserKeys())
	assert.Nil(t, r.Data)
}

func TestSelectPaging(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	for i := 0; i < 5; i++ {
		_, err := db.Write(ctx, water())
		require.NoError(t, err)
	}
	first, err := db.Select(ctx, Query{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	rest, err := db.Select(ctx, Query{AfterID: first[1].ID})
	require.NoError(t, err)
	require.Len(t, rest, 3)
	assert.Equal(t, int64(3), rest[0].ID)
}

func TestSelectCriteria(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	a := water()
	b := water()
	b.KeyValuePairs["step"] = int64(7)
	_, err := db.Write(ctx, a, b)
	require.NoError(t, err)

	rows, err := db.Select(ctx, Query{Criteria: []Criterion{{Key: "step", Op: OpGt, Value: "5"}}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].ID)

	_, err = db.Select(ctx, Query{Criteria: []Criterion{{Key: "step", Op: OpLt, Value: "abc"}}})
	assert.ErrorIs(t, err, ErrBadCriterion)
}

func TestGetAndAtoms(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	ids, err := db.Write(ctx, water())
	require.NoError(t, err)

	r, err := db.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "hello", r.Data["note"])

	a, err := db.Atoms(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, []int{8, 1, 1}, a.Numbers)
	assert.Equal(t, 0.76, a.Positions[1][0])
	require.NotNil(t, a.Energy)
	assert.Equal(t, -14.2, *a.Energy)

	_, err = db.Get(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.Atoms(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	ids, err := db.Write(ctx, water(), water())
	require.NoError(t, err)

	pbc := [3]bool{false, false, true}
	err = db.Update(ctx, ids, Change{
		Set:    map[string]any{"converged": false, "label": "ice"},
		Delete: []string{"step"},
		PBC:    &pbc,
		Data:   map[string]any{"extra": int64(1)},
	})
	require.NoError(t, err)

	r, err := db.Get(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, "ice", r.KeyValuePairs["label"])
	assert.Equal(t, false, r.KeyValuePairs["converged"])
	assert.NotContains(t, r.KeyValuePairs, "step")
	assert.Equal(t, pbc, r.PBC)
	assert.Equal(t, int64(1), r.Data["extra"])
	assert.Equal(t, "hello", r.Data["note"])
	assert.Greater(t, r.MTime, r.CTime-1e-9)
}

func TestUpdateReservedKeyLeavesRowUnchanged(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	ids, err := db.Write(ctx, water())
	require.NoError(t, err)
	before, err := db.Get(ctx, ids[0])
	require.NoError(t, err)

	for _, key := range []string{"energy", "id", "Au", "formula", "external_tables", "1abc"} {
		err := db.Update(ctx, ids, Change{Set: map[string]any{key: 1.5}})
		assert.ErrorIs(t, err, ErrReservedKey, key)
	}
	err = db.Update(ctx, ids, Change{Delete: []string{"energy"}})
	assert.ErrorIs(t, err, ErrReservedKey)
	err = db.Update(ctx, ids, Change{Set: map[string]any{"ok": "1.5"}})
	assert.ErrorIs(t, err, ErrBadValue)

	after, err := db.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpdateMissingRow(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	ids, err := db.Write(ctx, water())
	require.NoError(t, err)
	err = db.Update(ctx, []int64{ids[0], 42}, Change{Set: map[string]any{"a": int64(1)}})
	assert.ErrorIs(t, err, ErrNotFound)

	r, err := db.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.NotContains(t, r.KeyValuePairs, "a")
}

func TestDeleteAndStamps(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	ids, err := db.Write(ctx, water(), water(), water())
	require.NoError(t, err)
	require.NoError(t, db.Delete(ctx, ids[1:2]))

	stamps, err := db.Stamps(ctx)
	require.NoError(t, err)
	require.Len(t, stamps, 2)
	assert.Equal(t, ids[0], stamps[0].ID)
	assert.Equal(t, ids[2], stamps[1].ID)
}

func TestWriteRejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	a := water()
	a.KeyValuePairs["natoms"] = int64(2)
	_, err := db.Write(ctx, a)
	assert.ErrorIs(t, err, ErrReservedKey)
	n, err := db.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCheckKeyValue(t *testing.T) {
	assert.NoError(t, CheckKeyValue("foo", "bar"))
	assert.NoError(t, CheckKeyValue("_x1", int64(4)))
	assert.NoError(t, CheckKeyValue("flag", true))
	assert.ErrorIs(t, CheckKeyValue("foo", "12"), ErrBadValue)
	assert.ErrorIs(t, CheckKeyValue("foo", "True"), ErrBadValue)
	assert.ErrorIs(t, CheckKeyValue("foo", []int{1}), ErrBadValue)
	assert.ErrorIs(t, CheckKeyValue("pbc", "x"), ErrReservedKey)
	assert.ErrorIs(t, CheckKeyValue("has space", "x"), ErrReservedKey)
}

func TestConvertString(t *testing.T) {
	assert.Equal(t, int64(12), ConvertString("12"))
	assert.Equal(t, 1.5, ConvertString("1.5"))
	assert.Equal(t, true, ConvertString("True"))
	assert.Equal(t, false, ConvertString("false"))
	assert.Equal(t, "Cu", ConvertString("Cu"))
}

func TestPBC(t *testing.T) {
	pbc, err := ParsePBC("tft")
	require.NoError(t, err)
	assert.Equal(t, [3]bool{true, false, true}, pbc)
	assert.Equal(t, "TFT", FormatPBC(pbc))
	_, err = ParsePBC("TF")
	assert.ErrorIs(t, err, ErrBadValue)
	_, err = ParsePBC("TFX")
	assert.ErrorIs(t, err, ErrBadValue)
	assert.Equal(t, [3]bool{true, false, true}, intPBC(pbcInt(pbc)))
}

func TestCriterion(t *testing.T) {
	c, err := ParseCriterion("energy<=-1.5")
	require.NoError(t, err)
	assert.Equal(t, Criterion{Key: "energy", Op: OpLe, Value: "-1.5"}, c)
	assert.True(t, c.Match(-2.0, true))
	assert.False(t, c.Match(-1.0, true))
	assert.False(t, c.Match(nil, false))

	c, err = ParseCriterion("calculator in emt, vasp")
	require.NoError(t, err)
	assert.True(t, c.Match("vasp", true))
	assert.False(t, c.Match("gpaw", true))

	c, err = ParseCriterion("formula=H2O")
	require.NoError(t, err)
	assert.Equal(t, OpEq, c.Op)
	assert.True(t, c.Match("H2O", true))

	ne := Criterion{Key: "x", Op: OpNe, Value: "1"}
	assert.True(t, ne.Match(nil, false))
	assert.True(t, ne.Match(int64(2), true))
	assert.False(t, ne.Match(1.0, true))

	_, err = ParseCriterion("energy")
	assert.ErrorIs(t, err, ErrBadCriterion)
	assert.ErrorIs(t, Criterion{Key: "k", Op: "~", Value: "1"}.Validate(), ErrBadCriterion)
	assert.ErrorIs(t, Criterion{Key: "k", Op: OpIn, Value: " , "}.Validate(), ErrBadCriterion)
}

func TestFormulaAndTime(t *testing.T) {
	assert.Equal(t, "CH4", Formula([]int{1, 6, 1, 1, 1}))
	assert.Equal(t, "H2O", Formula([]int{8, 1, 1}))
	assert.Equal(t, "Au3Cu", Formula([]int{79, 29, 79, 79}))
	assert.Equal(t, "10s", TimeString(10/year))
	assert.Equal(t, "10m", TimeString(600/year))
	assert.Equal(t, "180s", TimeString(180/year))
	assert.Equal(t, "6d", TimeString(6*86400/year))
}
