package asedb

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrBadCriterion = errors.New("bad criterion")

// Op is a comparison operator understood by Criterion.
type Op string

const (
	OpEq Op = "=="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
	OpIn Op = "in"
)

// Ops lists the supported operators in the order the UI cycles through them.
var Ops = []Op{OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpIn}

// ParseOp returns the operator spelled s.
func ParseOp(s string) (Op, error) {
	s = strings.TrimSpace(s)
	if s == "=" {
		return OpEq, nil
	}
	for _, op := range Ops {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: unknown operator %q", ErrBadCriterion, s)
}

func (o Op) ordering() bool {
	return o == OpLt || o == OpLe || o == OpGt || o == OpGe
}

// Criterion restricts rows to those whose value for Key satisfies Op Value.
type Criterion struct {
	Key   string
	Op    Op
	Value string
}

// ParseCriterion reads a criterion written as e.g. "energy<-1.5",
// "formula=Au" or "calculator in emt,vasp".
func ParseCriterion(s string) (Criterion, error) {
	if i := strings.Index(s, " in "); i > 0 {
		c := Criterion{Key: strings.TrimSpace(s[:i]), Op: OpIn, Value: strings.TrimSpace(s[i+4:])}
		return c, c.Validate()
	}
	for _, tok := range []string{"<=", ">=", "==", "!=", "<", ">", "="} {
		i := strings.Index(s, tok)
		if i <= 0 {
			continue
		}
		op, _ := ParseOp(tok)
		c := Criterion{Key: strings.TrimSpace(s[:i]), Op: op, Value: strings.TrimSpace(s[i+len(tok):])}
		return c, c.Validate()
	}
	return Criterion{}, fmt.Errorf("%w: no operator in %q", ErrBadCriterion, s)
}

func (c Criterion) String() string {
	return fmt.Sprintf("%s %s %s", c.Key, c.Op, c.Value)
}

// Validate checks the operator/value combination.
func (c Criterion) Validate() error {
	if strings.TrimSpace(c.Key) == "" {
		return fmt.Errorf("%w: missing key", ErrBadCriterion)
	}
	if _, err := ParseOp(string(c.Op)); err != nil {
		return err
	}
	switch {
	case c.Op.ordering():
		if _, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64); err != nil {
			return fmt.Errorf("%w: %s needs a number, got %q", ErrBadCriterion, c.Op, c.Value)
		}
	case c.Op == OpIn:
		if len(c.items()) == 0 {
			return fmt.Errorf("%w: in needs a comma separated list of values", ErrBadCriterion)
		}
	}
	return nil
}

func (c Criterion) items() []string {
	var out []string
	for _, s := range strings.Split(c.Value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Match reports whether value (ok=false when the row lacks the key)
// satisfies the criterion. Missing values only satisfy !=.
func (c Criterion) Match(value any, ok bool) bool {
	if !ok || value == nil {
		return c.Op == OpNe
	}
	switch c.Op {
	case OpEq:
		return equal(value, c.Value)
	case OpNe:
		return !equal(value, c.Value)
	case OpIn:
		for _, item := range c.items() {
			if equal(value, item) {
				return true
			}
		}
		return false
	}
	x, isNum := number(value)
	if !isNum {
		return false
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
	if err != nil {
		return false
	}
	switch c.Op {
	case OpLt:
		return x < y
	case OpLe:
		return x <= y
	case OpGt:
		return x > y
	case OpGe:
		return x >= y
	}
	return false
}

func equal(value any, s string) bool {
	switch v := value.(type) {
	case string:
		return v == s
	case bool:
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(s)))
		return err == nil && b == v
	}
	x, isNum := number(value)
	if !isNum {
		return false
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil && x == y
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
