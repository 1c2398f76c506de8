package asedb

import (
	"sort"
)

// Row is one record of the systems table.
type Row struct {
	ID       int64
	UniqueID string
	CTime    float64
	MTime    float64
	User     string

	Numbers    []int
	Cell       [3][3]float64
	PBC        [3]bool
	Calculator string

	Energy *float64
	Fmax   *float64
	Smax   *float64
	Volume *float64
	Mass   *float64
	Charge *float64
	Magmom *float64

	KeyValuePairs map[string]any
	// Data is only filled by Get.
	Data map[string]any
}

// Formula returns the Hill formula of the row's structure.
func (r *Row) Formula() string {
	return Formula(r.Numbers)
}

// Get returns the value of a column: a structural column or a user key.
// age and modified are the raw ctime/mtime.
func (r *Row) Get(key string) (any, bool) {
	switch key {
	case "id":
		return r.ID, true
	case "unique_id":
		return r.UniqueID, true
	case "age", "ctime":
		return r.CTime, true
	case "modified", "mtime":
		return r.MTime, true
	case "user":
		return r.User, true
	case "formula":
		return r.Formula(), true
	case "natoms":
		return int64(len(r.Numbers)), true
	case "pbc":
		return FormatPBC(r.PBC), true
	case "calculator":
		if r.Calculator == "" {
			return nil, false
		}
		return r.Calculator, true
	case "energy":
		return floatValue(r.Energy)
	case "fmax":
		return floatValue(r.Fmax)
	case "smax":
		return floatValue(r.Smax)
	case "volume":
		return floatValue(r.Volume)
	case "mass":
		return floatValue(r.Mass)
	case "charge":
		return floatValue(r.Charge)
	case "magmom":
		return floatValue(r.Magmom)
	}
	v, ok := r.KeyValuePairs[key]
	return v, ok
}

// UserKeys returns the row's key-value keys sorted.
func (r *Row) UserKeys() []string {
	keys := make([]string, 0, len(r.KeyValuePairs))
	for k := range r.KeyValuePairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func floatValue(f *float64) (any, bool) {
	if f == nil {
		return nil, false
	}
	return *f, true
}
