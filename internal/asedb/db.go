// Package asedb reads and writes ASE-style SQLite databases of atomic
// structures.
package asedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("row not found")

const schemaVersion = "9"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS systems (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		unique_id TEXT UNIQUE,
		ctime REAL,
		mtime REAL,
		username TEXT,
		numbers BLOB,
		positions BLOB,
		cell BLOB,
		pbc INTEGER,
		initial_magmoms BLOB,
		initial_charges BLOB,
		calculator TEXT,
		calculator_parameters TEXT,
		energy REAL,
		forces BLOB,
		stress BLOB,
		magmom REAL,
		key_value_pairs TEXT,
		data TEXT,
		natoms INTEGER,
		fmax REAL,
		smax REAL,
		volume REAL,
		mass REAL,
		charge REAL)`,
	`CREATE TABLE IF NOT EXISTS species (
		Z INTEGER,
		n INTEGER,
		id INTEGER,
		FOREIGN KEY (id) REFERENCES systems(id))`,
	`CREATE TABLE IF NOT EXISTS keys (
		key TEXT,
		id INTEGER,
		FOREIGN KEY (id) REFERENCES systems(id))`,
	`CREATE TABLE IF NOT EXISTS text_key_values (
		key TEXT,
		value TEXT,
		id INTEGER,
		FOREIGN KEY (id) REFERENCES systems(id))`,
	`CREATE TABLE IF NOT EXISTS number_key_values (
		key TEXT,
		value REAL,
		id INTEGER,
		FOREIGN KEY (id) REFERENCES systems(id))`,
	`CREATE TABLE IF NOT EXISTS information (
		name TEXT,
		value TEXT)`,
	`CREATE INDEX IF NOT EXISTS unique_id_index ON systems(unique_id)`,
	`CREATE INDEX IF NOT EXISTS keys_index ON keys(key)`,
}

// DB is an open database file. All access goes through one connection.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (and if needed creates) the database at path.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init schema %s: %w", path, err)
		}
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM information WHERE name = 'version'`).Scan(&n); err != nil {
		db.Close()
		return nil, fmt.Errorf("read version %s: %w", path, err)
	}
	if n == 0 {
		if _, err := db.ExecContext(ctx, `INSERT INTO information VALUES ('version', ?)`, schemaVersion); err != nil {
			db.Close()
			return nil, fmt.Errorf("write version %s: %w", path, err)
		}
	}
	return &DB{db: db, path: path}, nil
}

// Path returns the file the database was opened from.
func (d *DB) Path() string { return d.path }

func (d *DB) Close() error { return d.db.Close() }

// ModTime returns the modification time of the database file.
func (d *DB) ModTime() (time.Time, error) {
	info, err := os.Stat(d.path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Count returns the number of rows.
func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT count(*) FROM systems`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Query selects rows. Rows come back in id order.
type Query struct {
	Criteria []Criterion
	AfterID  int64 // only ids greater than this
	Limit    int   // 0 means no limit
}

const rowColumns = `id, unique_id, ctime, mtime, username, numbers, cell, pbc,
	calculator, energy, fmax, smax, volume, mass, charge, magmom, key_value_pairs`

// Select returns the rows matching q.
func (d *DB) Select(ctx context.Context, q Query) ([]*Row, error) {
	for _, c := range q.Criteria {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	stmt := `SELECT ` + rowColumns + ` FROM systems WHERE id > ? ORDER BY id`
	args := []any{q.AfterID}
	if q.Limit > 0 && len(q.Criteria) == 0 {
		stmt += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	rows, err := d.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	defer rows.Close()

	var out []*Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		if !matchAll(r, q.Criteria) {
			continue
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, rows.Err()
}

func matchAll(r *Row, criteria []Criterion) bool {
	for _, c := range criteria {
		v, ok := r.Get(c.Key)
		if !c.Match(v, ok) {
			return false
		}
	}
	return true
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (*Row, error) {
	var (
		r                                        Row
		uid, username, calc, kvp                 sql.NullString
		ctime, mtime                             sql.NullFloat64
		numbers, cell                            []byte
		pbc                                      sql.NullInt64
		energy, fmax, smax, volume, mass, charge sql.NullFloat64
		magmom                                   sql.NullFloat64
	)
	err := s.Scan(&r.ID, &uid, &ctime, &mtime, &username, &numbers, &cell, &pbc,
		&calc, &energy, &fmax, &smax, &volume, &mass, &charge, &magmom, &kvp)
	if err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	r.UniqueID = uid.String
	r.CTime = ctime.Float64
	r.MTime = mtime.Float64
	r.User = username.String
	r.Numbers = blobInts(numbers)
	r.Cell = blobCell(cell)
	r.PBC = intPBC(pbc.Int64)
	r.Calculator = calc.String
	r.Energy = nullFloat(energy)
	r.Fmax = nullFloat(fmax)
	r.Smax = nullFloat(smax)
	r.Volume = nullFloat(volume)
	r.Mass = nullFloat(mass)
	r.Charge = nullFloat(charge)
	r.Magmom = nullFloat(magmom)
	if r.KeyValuePairs, err = decodeJSON(kvp.String); err != nil {
		return nil, fmt.Errorf("row %d key_value_pairs: %w", r.ID, err)
	}
	return &r, nil
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

// Get returns one row including its data section.
func (d *DB) Get(ctx context.Context, id int64) (*Row, error) {
	r, err := scanRow(d.db.QueryRowContext(ctx, `SELECT `+rowColumns+` FROM systems WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var data sql.NullString
	if err := d.db.QueryRowContext(ctx, `SELECT data FROM systems WHERE id = ?`, id).Scan(&data); err != nil {
		return nil, fmt.Errorf("get %d data: %w", id, err)
	}
	if r.Data, err = decodeJSON(data.String); err != nil {
		return nil, fmt.Errorf("row %d data: %w", id, err)
	}
	return r, nil
}

// Atoms returns the full structure stored in row id.
func (d *DB) Atoms(ctx context.Context, id int64) (*Atoms, error) {
	var (
		a                                Atoms
		numbers, positions, cell         []byte
		magmoms, charges, forces, stress []byte
		pbc                              sql.NullInt64
		calc, params, kvp, data          sql.NullString
		energy, magmom                   sql.NullFloat64
	)
	err := d.db.QueryRowContext(ctx, `SELECT numbers, positions, cell, pbc,
		initial_magmoms, initial_charges, calculator, calculator_parameters,
		energy, forces, stress, magmom, key_value_pairs, data
		FROM systems WHERE id = ?`, id).Scan(&numbers, &positions, &cell, &pbc,
		&magmoms, &charges, &calc, &params, &energy, &forces, &stress, &magmom, &kvp, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("atoms %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("atoms %d: %w", id, err)
	}
	a.Numbers = blobInts(numbers)
	a.Positions = blobVecs(positions)
	a.Cell = blobCell(cell)
	a.PBC = intPBC(pbc.Int64)
	if magmoms != nil {
		a.InitialMagmoms = blobFloats(magmoms)
	}
	if charges != nil {
		a.InitialCharges = blobFloats(charges)
	}
	a.Calculator = calc.String
	a.Energy = nullFloat(energy)
	if forces != nil {
		a.Forces = blobVecs(forces)
	}
	if stress != nil {
		a.Stress = blobFloats(stress)
	}
	a.Magmom = nullFloat(magmom)
	if a.CalculatorParameters, err = decodeJSON(params.String); err != nil {
		return nil, err
	}
	if a.KeyValuePairs, err = decodeJSON(kvp.String); err != nil {
		return nil, err
	}
	if a.Data, err = decodeJSON(data.String); err != nil {
		return nil, err
	}
	return &a, nil
}

// Write inserts structures and returns their new ids. Either all of them
// are written or none.
func (d *DB) Write(ctx context.Context, atoms ...*Atoms) ([]int64, error) {
	for _, a := range atoms {
		for k, v := range a.KeyValuePairs {
			if err := CheckKeyValue(k, v); err != nil {
				return nil, err
			}
		}
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	defer tx.Rollback()

	now := Now()
	username := currentUser()
	ids := make([]int64, 0, len(atoms))
	for _, a := range atoms {
		kvp, err := encodeJSON(a.KeyValuePairs)
		if err != nil {
			return nil, err
		}
		data, err := encodeJSON(a.Data)
		if err != nil {
			return nil, err
		}
		params, err := encodeJSON(a.CalculatorParameters)
		if err != nil {
			return nil, err
		}
		var calc any
		if a.Calculator != "" {
			calc = a.Calculator
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO systems (unique_id, ctime, mtime,
			username, numbers, positions, cell, pbc, initial_magmoms, initial_charges,
			calculator, calculator_parameters, energy, forces, stress, magmom,
			key_value_pairs, data, natoms, fmax, smax, volume, mass, charge)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			strings.ReplaceAll(uuid.NewString(), "-", ""), now, now, username,
			intBlob(a.Numbers), vecBlob(a.Positions), cellBlob(a.Cell), pbcInt(a.PBC),
			floatBlob(a.InitialMagmoms), floatBlob(a.InitialCharges),
			calc, params, ptr(a.Energy), vecBlob(a.Forces), floatBlob(a.Stress), ptr(a.Magmom),
			kvp, data, len(a.Numbers), ptr(a.Fmax()), ptr(a.Smax()), ptr(a.Volume()),
			a.Mass(), ptr(a.Charge()))
		if err != nil {
			return nil, fmt.Errorf("insert: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("insert id: %w", err)
		}
		if err := writeSpecies(ctx, tx, id, a.Numbers); err != nil {
			return nil, err
		}
		if err := writeKeys(ctx, tx, id, a.KeyValuePairs); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("write commit: %w", err)
	}
	return ids, nil
}

func ptr(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

func writeSpecies(ctx context.Context, tx *sql.Tx, id int64, numbers []int) error {
	count := map[int]int{}
	for _, z := range numbers {
		count[z]++
	}
	for z, n := range count {
		if _, err := tx.ExecContext(ctx, `INSERT INTO species VALUES (?, ?, ?)`, z, n, id); err != nil {
			return fmt.Errorf("insert species: %w", err)
		}
	}
	return nil
}

// writeKeys replaces the search tables entries of row id.
func writeKeys(ctx context.Context, tx *sql.Tx, id int64, kvp map[string]any) error {
	for _, table := range []string{"keys", "text_key_values", "number_key_values"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for k, v := range kvp {
		if _, err := tx.ExecContext(ctx, `INSERT INTO keys VALUES (?, ?)`, k, id); err != nil {
			return fmt.Errorf("insert key: %w", err)
		}
		var err error
		switch x := v.(type) {
		case string:
			_, err = tx.ExecContext(ctx, `INSERT INTO text_key_values VALUES (?, ?, ?)`, k, x, id)
		case bool:
			b := 0
			if x {
				b = 1
			}
			_, err = tx.ExecContext(ctx, `INSERT INTO number_key_values VALUES (?, ?, ?)`, k, b, id)
		default:
			if f, ok := number(v); ok {
				_, err = tx.ExecContext(ctx, `INSERT INTO number_key_values VALUES (?, ?, ?)`, k, f, id)
			}
		}
		if err != nil {
			return fmt.Errorf("insert key value: %w", err)
		}
	}
	return nil
}

// Change describes an update applied to every row of an Update call.
type Change struct {
	Set    map[string]any // user key-value pairs to add or replace
	Delete []string       // user keys to remove
	PBC    *[3]bool
	Data   map[string]any // data entries to add or replace
}

// Update applies ch to all ids. Keys are validated before anything is
// written; either every row is updated or none.
func (d *DB) Update(ctx context.Context, ids []int64, ch Change) error {
	for k, v := range ch.Set {
		if err := CheckKeyValue(k, v); err != nil {
			return err
		}
	}
	for _, k := range ch.Delete {
		if IsReserved(k) {
			return fmt.Errorf("%w: %q cannot be deleted", ErrReservedKey, k)
		}
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	defer tx.Rollback()

	now := Now()
	for _, id := range ids {
		var kvpText, dataText sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT key_value_pairs, data FROM systems WHERE id = ?`, id).Scan(&kvpText, &dataText)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("update %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("update %d: %w", id, err)
		}
		kvp, err := decodeJSON(kvpText.String)
		if err != nil {
			return err
		}
		for k, v := range ch.Set {
			kvp[k] = v
		}
		for _, k := range ch.Delete {
			delete(kvp, k)
		}
		kvpOut, err := encodeJSON(kvp)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE systems SET key_value_pairs = ?, mtime = ? WHERE id = ?`, kvpOut, now, id); err != nil {
			return fmt.Errorf("update %d: %w", id, err)
		}
		if err := writeKeys(ctx, tx, id, kvp); err != nil {
			return err
		}
		if ch.PBC != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE systems SET pbc = ? WHERE id = ?`, pbcInt(*ch.PBC), id); err != nil {
				return fmt.Errorf("update %d pbc: %w", id, err)
			}
		}
		if len(ch.Data) > 0 {
			data, err := decodeJSON(dataText.String)
			if err != nil {
				return err
			}
			for k, v := range ch.Data {
				data[k] = v
			}
			dataOut, err := encodeJSON(data)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE systems SET data = ? WHERE id = ?`, dataOut, id); err != nil {
				return fmt.Errorf("update %d data: %w", id, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update commit: %w", err)
	}
	return nil
}

// Delete removes rows.
func (d *DB) Delete(ctx context.Context, ids []int64) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	defer tx.Rollback()
	for _, id := range ids {
		for _, table := range []string{"species", "keys", "text_key_values", "number_key_values", "systems"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id); err != nil {
				return fmt.Errorf("delete %d from %s: %w", id, table, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete commit: %w", err)
	}
	return nil
}

// Stamp is the id and modification time of a row.
type Stamp struct {
	ID    int64
	MTime float64
}

// Stamps returns id and mtime of all rows in id order.
func (d *DB) Stamps(ctx context.Context) ([]Stamp, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, mtime FROM systems ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("stamps: %w", err)
	}
	defer rows.Close()
	var out []Stamp
	for rows.Next() {
		var s Stamp
		var mtime sql.NullFloat64
		if err := rows.Scan(&s.ID, &mtime); err != nil {
			return nil, fmt.Errorf("stamps: %w", err)
		}
		s.MTime = mtime.Float64
		out = append(out, s)
	}
	return out, rows.Err()
}
