package asedb

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrReservedKey = errors.New("reserved key")
	ErrBadValue    = errors.New("bad value")
)

// Columns that every row has, in the default display order. modified is
// known but not shown by default.
var (
	DefaultColumns = []string{
		"id", "age", "user", "formula", "calculator", "energy", "natoms",
		"fmax", "pbc", "volume", "charge", "mass", "smax", "magmom",
	}
	StructuralColumns = append(append([]string{}, DefaultColumns...), "modified")
)

var wordRe = regexp.MustCompile(`^[_a-zA-Z][_0-9a-zA-Z]*$`)

var reservedKeys = func() map[string]bool {
	m := map[string]bool{}
	for _, k := range []string{
		// properties
		"energy", "forces", "stress", "stresses", "dipole", "charges", "magmom",
		"magmoms", "free_energy", "energies", "dielectric_tensor",
		"born_effective_charges", "polarization",
		// changes
		"positions", "numbers", "cell", "pbc", "initial_charges", "initial_magmoms",
		// row metadata
		"id", "unique_id", "ctime", "mtime", "user", "fmax", "smax", "momenta",
		"constraints", "natoms", "formula", "age", "calculator",
		"calculator_parameters", "key_value_pairs", "data",
	} {
		m[k] = true
	}
	for _, s := range symbols {
		m[s] = true
	}
	return m
}()

// IsReserved reports whether key is a structural key that cannot hold a
// user key-value pair.
func IsReserved(key string) bool {
	return reservedKeys[key] || key == "external_tables"
}

// CheckKeyValue validates a user key-value pair the way the database
// enforces it on write.
func CheckKeyValue(key string, value any) error {
	if key == "external_tables" {
		return fmt.Errorf("%w: %q is a reserved key", ErrReservedKey, key)
	}
	if !wordRe.MatchString(key) {
		return fmt.Errorf("%w: bad key %q, keys must match [_a-zA-Z][_0-9a-zA-Z]*", ErrReservedKey, key)
	}
	if reservedKeys[key] {
		return fmt.Errorf("%w: bad key %q, it is used by the database itself", ErrReservedKey, key)
	}
	switch v := value.(type) {
	case bool, int, int64, float64:
	case string:
		switch ConvertString(v).(type) {
		case string:
		default:
			return fmt.Errorf("%w: value %s is put in as string but can be interpreted as a number or bool", ErrBadValue, v)
		}
	default:
		return fmt.Errorf("%w: bad value for %q: %v", ErrBadValue, key, value)
	}
	return nil
}

// ConvertString turns user input into an int64, float64 or bool when it
// can be read as one, otherwise it returns the string unchanged.
func ConvertString(s string) any {
	if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// ParsePBC reads periodic boundary conditions written as three T/F letters.
func ParsePBC(s string) ([3]bool, error) {
	var pbc [3]bool
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 {
		return pbc, fmt.Errorf("%w: %s does not have exactly three characters", ErrBadValue, s)
	}
	for i, c := range s {
		switch c {
		case 'T':
			pbc[i] = true
		case 'F':
		default:
			return pbc, fmt.Errorf("%w: %s contains characters that are not T or F", ErrBadValue, s)
		}
	}
	return pbc, nil
}

// FormatPBC writes pbc as three T/F letters.
func FormatPBC(pbc [3]bool) string {
	b := []byte("FFF")
	for i, p := range pbc {
		if p {
			b[i] = 'T'
		}
	}
	return string(b)
}
