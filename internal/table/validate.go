package table

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/steenlysgaard/texase/internal/asedb"
)

var ErrInvalidInput = errors.New("invalid input")

// array literals: [1 2 3], ["a" "b"], np.array([1, 2]) and friends.
var compoundRe = regexp.MustCompile(`^\s*(\[.*\]|\{.*\}|\(.*\)|np\.array\(.*\))\s*$`)

// CheckInput runs the checks that apply to every key-value text box. add
// selects the stricter form that requires "key = value".
func CheckInput(s string, add bool) error {
	for _, part := range strings.Split(s, "=") {
		if strings.TrimSpace(part) == "" {
			return fmt.Errorf("%w: the key or value can't be only whitespace", ErrInvalidInput)
		}
	}
	if strings.Contains(s, ",") {
		return fmt.Errorf("%w: the key or value can't contain a comma, only one key-value pair can be added at a time", ErrInvalidInput)
	}
	parts := strings.Split(s, "=")
	if compoundRe.MatchString(parts[len(parts)-1]) {
		return fmt.Errorf("%w: the value can be interpreted as something other than a string, number or boolean", ErrInvalidInput)
	}
	if add && !strings.Contains(s, "=") {
		return fmt.Errorf("%w: must contain '='", ErrInvalidInput)
	}
	return nil
}

// ParseKeyValue reads "key = value" typed into the add box.
func ParseKeyValue(s string) (string, any, error) {
	if err := CheckInput(s, true); err != nil {
		return "", nil, err
	}
	key, raw, _ := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	v, err := ParseValue(key, raw)
	return key, v, err
}

// ParseValue converts the text typed for key to a typed value and checks
// that the database accepts it. pbc yields a [3]bool.
func ParseValue(key, s string) (any, error) {
	s = strings.TrimSpace(s)
	if key == "pbc" {
		return asedb.ParsePBC(s)
	}
	v := asedb.ConvertString(s)
	if err := asedb.CheckKeyValue(key, v); err != nil {
		return nil, err
	}
	return v, nil
}

// TypeChanged returns a warning when an edit changes the value type.
func TypeChanged(key string, old, updated any) string {
	if old == nil || TypeName(old) == TypeName(updated) {
		return ""
	}
	return fmt.Sprintf("The type of %s = %s has changed from %s to %s.",
		key, FormatValue(updated), TypeName(old), TypeName(updated))
}
