package table

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/steenlysgaard/texase/internal/asedb"
)

// AddFilter restricts the visible rows to those matching c. An invalid
// criterion leaves the model unchanged.
func (m *Model) AddFilter(c asedb.Criterion) error {
	if err := m.checkCriterion(c); err != nil {
		return err
	}
	if slices.Contains(m.filters, c) {
		return nil
	}
	m.filters = append(m.filters, c)
	m.rebuild()
	return nil
}

func (m *Model) checkCriterion(c asedb.Criterion) error {
	if !m.known(c.Key) && c.Key != "unique_id" {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, c.Key)
	}
	return c.Validate()
}

// RemoveFilter drops an active filter.
func (m *Model) RemoveFilter(c asedb.Criterion) bool {
	i := slices.Index(m.filters, c)
	if i < 0 {
		return false
	}
	m.filters = slices.Delete(m.filters, i, i+1)
	m.rebuild()
	return true
}

// RemoveLastFilter drops the most recently added filter.
func (m *Model) RemoveLastFilter() (asedb.Criterion, bool) {
	if len(m.filters) == 0 {
		return asedb.Criterion{}, false
	}
	c := m.filters[len(m.filters)-1]
	m.RemoveFilter(c)
	return c, true
}

func (m *Model) ClearFilters() {
	m.filters = nil
	m.rebuild()
}

func (m *Model) Filters() []asedb.Criterion { return slices.Clone(m.filters) }

// MarkMatching marks the visible rows matching c instead of filtering on
// it and returns how many were marked.
func (m *Model) MarkMatching(c asedb.Criterion) (int, error) {
	if err := m.checkCriterion(c); err != nil {
		return 0, err
	}
	n := 0
	for _, id := range m.visible {
		r := m.rows[m.index[id]]
		if v, ok := r.Get(c.Key); c.Match(v, ok) {
			m.marked[id] = true
			n++
		}
	}
	return n, nil
}

// Coord is a cell position in the visible table.
type Coord struct {
	Row, Col int
}

func (c Coord) before(o Coord) bool {
	return c.Row < o.Row || (c.Row == o.Row && c.Col < o.Col)
}

// Matcher returns a regular expression match when query compiles and does
// not end in a lone backslash, otherwise a plain substring match.
func Matcher(query string) func(string) bool {
	if !strings.HasSuffix(query, `\`) {
		if re, err := regexp.Compile(query); err == nil {
			return re.MatchString
		}
	}
	return func(s string) bool { return strings.Contains(s, query) }
}

// Matches returns every visible cell whose displayed text matches query,
// row by row.
func (m *Model) Matches(query string) []Coord {
	if query == "" {
		return nil
	}
	match := Matcher(query)
	var out []Coord
	for i, id := range m.visible {
		for j, col := range m.columns {
			if match(m.Cell(id, col)) {
				out = append(out, Coord{i, j})
			}
		}
	}
	return out
}

// Search returns the first match after from (before it when backwards),
// wrapping around the table.
func (m *Model) Search(query string, from Coord, backwards bool) (Coord, bool) {
	matches := m.Matches(query)
	if len(matches) == 0 {
		return Coord{}, false
	}
	if backwards {
		for i := len(matches) - 1; i >= 0; i-- {
			if matches[i].before(from) {
				return matches[i], true
			}
		}
		return matches[len(matches)-1], true
	}
	for _, c := range matches {
		if from.before(c) {
			return c, true
		}
	}
	return matches[0], true
}
