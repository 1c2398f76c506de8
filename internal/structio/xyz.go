package structio

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/steenlysgaard/texase/internal/asedb"
)

// property is one column group of the extended XYZ Properties field.
type property struct {
	name  string
	typ   byte // S, R, I or L
	ncols int
}

var defaultProperties = []property{{"species", 'S', 1}, {"pos", 'R', 3}}

// propertyWidth is the column count of the properties read into Atoms.
var propertyWidth = map[string]int{
	"species": 1, "Z": 1, "pos": 3, "forces": 3,
	"initial_magmoms": 1, "magmoms": 1, "initial_charges": 1, "charges": 1,
}

func readXYZ(r io.Reader) ([]*asedb.Atoms, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	var frames []*asedb.Atoms
	line := 0
	for sc.Scan() {
		line++
		head := strings.TrimSpace(sc.Text())
		if head == "" {
			continue
		}
		natoms, err := strconv.Atoi(head)
		if err != nil || natoms < 0 {
			return nil, fmt.Errorf("%w: line %d: expected atom count, got %q", ErrMalformed, line, head)
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("%w: line %d: missing comment line", ErrMalformed, line)
		}
		line++
		a, props, err := parseComment(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		// atoms are appended as read, the header count only bounds the loop
		for i := 0; i < natoms; i++ {
			if !sc.Scan() {
				return nil, fmt.Errorf("%w: expected %d atoms, file ends after %d", ErrMalformed, natoms, i)
			}
			line++
			if err := parseAtomLine(a, strings.Fields(sc.Text()), props); err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
			}
		}
		frames = append(frames, a)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return frames, nil
}

// parseAtomLine appends the atom on one line to a.
func parseAtomLine(a *asedb.Atoms, fields []string, props []property) error {
	var (
		z   int
		pos [3]float64
	)
	col := 0
	for _, p := range props {
		if col+p.ncols > len(fields) {
			return fmt.Errorf("expected %s in column %d", p.name, col+1)
		}
		vals := fields[col : col+p.ncols]
		col += p.ncols
		switch p.name {
		case "species":
			n, ok := asedb.AtomicNumber(vals[0])
			if !ok {
				return fmt.Errorf("unknown element %q", vals[0])
			}
			z = n
		case "Z":
			n, err := strconv.Atoi(vals[0])
			if err != nil {
				return err
			}
			z = n
		case "pos", "forces":
			var v [3]float64
			for k := range v {
				f, err := strconv.ParseFloat(vals[k], 64)
				if err != nil {
					return err
				}
				v[k] = f
			}
			if p.name == "pos" {
				pos = v
			} else {
				a.Forces = append(a.Forces, v)
			}
		case "initial_magmoms", "magmoms", "initial_charges", "charges":
			f, err := strconv.ParseFloat(vals[0], 64)
			if err != nil {
				return err
			}
			if strings.HasSuffix(p.name, "charges") {
				a.InitialCharges = append(a.InitialCharges, f)
			} else {
				a.InitialMagmoms = append(a.InitialMagmoms, f)
			}
		}
	}
	a.Numbers = append(a.Numbers, z)
	a.Positions = append(a.Positions, pos)
	return nil
}

// parseComment reads the key=value pairs of an extended XYZ comment line.
// A plain XYZ comment without '=' carries no information.
func parseComment(s string) (*asedb.Atoms, []property, error) {
	a := &asedb.Atoms{}
	props := defaultProperties
	if !strings.Contains(s, "=") {
		return a, props, nil
	}
	pairs, err := splitPairs(s)
	if err != nil {
		return nil, nil, err
	}
	for _, kv := range pairs {
		key, val := kv[0], kv[1]
		switch strings.ToLower(key) {
		case "lattice":
			f, err := parseFloats(val, 9)
			if err != nil {
				return nil, nil, fmt.Errorf("lattice: %v", err)
			}
			for i := 0; i < 9; i++ {
				a.Cell[i/3][i%3] = f[i]
			}
			a.PBC = [3]bool{true, true, true}
		case "properties":
			if props, err = parseProperties(val); err != nil {
				return nil, nil, err
			}
		case "pbc":
			pbc, err := asedb.ParsePBC(strings.ReplaceAll(val, " ", ""))
			if err != nil {
				return nil, nil, err
			}
			a.PBC = pbc
		case "energy", "magmom":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %v", key, err)
			}
			if strings.EqualFold(key, "energy") {
				a.Energy = &f
			} else {
				a.Magmom = &f
			}
		case "stress":
			f, err := parseFloats(val, -1)
			if err != nil || (len(f) != 6 && len(f) != 9) {
				return nil, nil, fmt.Errorf("stress needs 6 or 9 values")
			}
			if len(f) == 9 {
				f = []float64{f[0], f[4], f[8], f[5], f[2], f[1]}
			}
			a.Stress = f
		case "calculator":
			a.Calculator = val
		default:
			if a.KeyValuePairs == nil {
				a.KeyValuePairs = map[string]any{}
			}
			a.KeyValuePairs[key] = asedb.ConvertString(val)
		}
	}
	return a, props, nil
}

// splitPairs tokenizes `a=1 b="x y" flag` into key/value pairs. A bare
// key is a true flag.
func splitPairs(s string) ([][2]string, error) {
	var out [][2]string
	s = strings.TrimSpace(s)
	for s != "" {
		end := strings.IndexAny(s, "= \t")
		if end < 0 {
			out = append(out, [2]string{s, "True"})
			break
		}
		key := s[:end]
		s = s[end:]
		if s[0] != '=' {
			out = append(out, [2]string{key, "True"})
			s = strings.TrimLeft(s, " \t")
			continue
		}
		s = s[1:]
		var val string
		if strings.HasPrefix(s, `"`) {
			closing := strings.Index(s[1:], `"`)
			if closing < 0 {
				return nil, fmt.Errorf("unterminated quote for %s", key)
			}
			val = s[1 : closing+1]
			s = s[closing+2:]
		} else {
			end := strings.IndexAny(s, " \t")
			if end < 0 {
				end = len(s)
			}
			val = s[:end]
			s = s[end:]
		}
		out = append(out, [2]string{key, val})
		s = strings.TrimLeft(s, " \t")
	}
	return out, nil
}

func parseFloats(s string, n int) ([]float64, error) {
	fields := strings.Fields(s)
	if n >= 0 && len(fields) != n {
		return nil, fmt.Errorf("expected %d numbers, got %d", n, len(fields))
	}
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseProperties(s string) ([]property, error) {
	parts := strings.Split(s, ":")
	if len(parts)%3 != 0 {
		return nil, fmt.Errorf("properties %q are not name:type:count triplets", s)
	}
	var out []property
	for i := 0; i < len(parts); i += 3 {
		n, err := strconv.Atoi(parts[i+2])
		if err != nil || n < 1 || len(parts[i+1]) != 1 {
			return nil, fmt.Errorf("bad property %s:%s:%s", parts[i], parts[i+1], parts[i+2])
		}
		if want, ok := propertyWidth[parts[i]]; ok && n != want {
			return nil, fmt.Errorf("property %s needs %d columns, got %d", parts[i], want, n)
		}
		out = append(out, property{name: parts[i], typ: parts[i+1][0], ncols: n})
	}
	return out, nil
}

func writeXYZ(w io.Writer, frames []*asedb.Atoms) error {
	bw := bufio.NewWriter(w)
	for _, a := range frames {
		props := "species:S:1:pos:R:3"
		if a.Forces != nil {
			props += ":forces:R:3"
		}
		if a.InitialMagmoms != nil {
			props += ":initial_magmoms:R:1"
		}
		if a.InitialCharges != nil {
			props += ":initial_charges:R:1"
		}
		fmt.Fprintf(bw, "%d\n", len(a.Numbers))
		var info []string
		if a.Cell != ([3][3]float64{}) {
			var cell []string
			for _, v := range a.Cell {
				for _, x := range v {
					cell = append(cell, formatFloat(x))
				}
			}
			info = append(info, fmt.Sprintf("Lattice=%q", strings.Join(cell, " ")))
		}
		info = append(info, "Properties="+props)
		if a.Energy != nil {
			info = append(info, "energy="+formatFloat(*a.Energy))
		}
		if a.Magmom != nil {
			info = append(info, "magmom="+formatFloat(*a.Magmom))
		}
		if a.Stress != nil {
			var st []string
			for _, x := range a.Stress {
				st = append(st, formatFloat(x))
			}
			info = append(info, fmt.Sprintf("stress=%q", strings.Join(st, " ")))
		}
		if a.Calculator != "" {
			info = append(info, "calculator="+quote(a.Calculator))
		}
		keys := make([]string, 0, len(a.KeyValuePairs))
		for k := range a.KeyValuePairs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			info = append(info, k+"="+formatValue(a.KeyValuePairs[k]))
		}
		pbc := asedb.FormatPBC(a.PBC)
		info = append(info, fmt.Sprintf(`pbc="%c %c %c"`, pbc[0], pbc[1], pbc[2]))
		fmt.Fprintln(bw, strings.Join(info, " "))

		for i, z := range a.Numbers {
			p := a.Positions[i]
			fmt.Fprintf(bw, "%-2s %16.8f %16.8f %16.8f", asedb.Symbol(z), p[0], p[1], p[2])
			if a.Forces != nil {
				f := a.Forces[i]
				fmt.Fprintf(bw, " %16.8f %16.8f %16.8f", f[0], f[1], f[2])
			}
			if a.InitialMagmoms != nil {
				fmt.Fprintf(bw, " %16.8f", a.InitialMagmoms[i])
			}
			if a.InitialCharges != nil {
				fmt.Fprintf(bw, " %16.8f", a.InitialCharges[i])
			}
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

// formatFloat keeps a decimal point so integral floats read back as floats.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEIN") {
		s += ".0"
	}
	return s
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return formatFloat(x)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case string:
		return quote(x)
	}
	return fmt.Sprint(v)
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t=\"") {
		return `"` + strings.ReplaceAll(s, `"`, "'") + `"`
	}
	return s
}
