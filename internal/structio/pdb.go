package structio

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/floats"

	"github.com/steenlysgaard/texase/internal/asedb"
)

func readPDB(r io.Reader) ([]*asedb.Atoms, error) {
	sc := bufio.NewScanner(r)
	var (
		frames  []*asedb.Atoms
		cur     *asedb.Atoms
		cell    [3][3]float64
		hasCell bool
		line    int
	)
	flush := func() {
		if cur != nil && len(cur.Numbers) > 0 {
			frames = append(frames, cur)
		}
		cur = nil
	}
	for sc.Scan() {
		line++
		l := sc.Text()
		switch {
		case strings.HasPrefix(l, "CRYST1"):
			par, err := parseCryst1(l)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
			}
			cell, hasCell = cellFromPar(par), true
		case strings.HasPrefix(l, "MODEL"):
			flush()
		case strings.HasPrefix(l, "ATOM") || strings.HasPrefix(l, "HETATM"):
			if cur == nil {
				cur = &asedb.Atoms{Cell: cell}
				if hasCell {
					cur.PBC = [3]bool{true, true, true}
				}
			}
			z, pos, err := parseAtomRecord(l)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
			}
			cur.Numbers = append(cur.Numbers, z)
			cur.Positions = append(cur.Positions, pos)
		case strings.HasPrefix(l, "END"):
			flush()
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	flush()
	return frames, nil
}

func parseCryst1(l string) ([6]float64, error) {
	var par [6]float64
	if len(l) < 54 {
		return par, fmt.Errorf("short CRYST1 record")
	}
	f, err := parseFloats(l[6:54], 6)
	if err != nil {
		return par, fmt.Errorf("CRYST1: %v", err)
	}
	copy(par[:], f)
	return par, nil
}

func parseAtomRecord(l string) (int, [3]float64, error) {
	var pos [3]float64
	if len(l) < 54 {
		return 0, pos, fmt.Errorf("short %s record", strings.TrimSpace(l[:min(len(l), 6)]))
	}
	for k := range pos {
		f, err := strconv.ParseFloat(strings.TrimSpace(l[30+8*k:38+8*k]), 64)
		if err != nil {
			return 0, pos, err
		}
		pos[k] = f
	}
	symbol := ""
	if len(l) >= 78 {
		symbol = strings.TrimSpace(l[76:78])
	}
	if symbol == "" {
		// fall back to the atom name with digits stripped
		symbol = strings.TrimFunc(strings.TrimSpace(l[12:16]), func(r rune) bool { return !unicode.IsLetter(r) })
		if len(symbol) > 2 {
			symbol = symbol[:2]
		}
	}
	symbol = normalizeSymbol(symbol)
	z, ok := asedb.AtomicNumber(symbol)
	if !ok && len(symbol) == 2 {
		z, ok = asedb.AtomicNumber(symbol[:1])
	}
	if !ok {
		return 0, pos, fmt.Errorf("unknown element %q", symbol)
	}
	return z, pos, nil
}

func normalizeSymbol(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func writePDB(w io.Writer, frames []*asedb.Atoms) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "REMARK   written by texase")
	for j, a := range frames {
		if a.Cell != ([3][3]float64{}) {
			p := cellPar(a.Cell)
			fmt.Fprintf(bw, "CRYST1%9.3f%9.3f%9.3f%7.2f%7.2f%7.2f P 1\n", p[0], p[1], p[2], p[3], p[4], p[5])
		}
		fmt.Fprintf(bw, "MODEL     %4d\n", j+1)
		for i, z := range a.Numbers {
			sym := asedb.Symbol(z)
			p := a.Positions[i]
			fmt.Fprintf(bw, "ATOM  %5d %4s MOL     1    %8.3f%8.3f%8.3f%6.2f%6.2f          %2s  \n",
				(i+1)%100000, sym, p[0], p[1], p[2], 1.0, 0.0, strings.ToUpper(sym))
		}
		fmt.Fprintln(bw, "ENDMDL")
	}
	fmt.Fprintln(bw, "END")
	return bw.Flush()
}

// cellPar returns the lengths a, b, c and angles alpha, beta, gamma (in
// degrees) of a cell.
func cellPar(cell [3][3]float64) [6]float64 {
	a, b, c := cell[0][:], cell[1][:], cell[2][:]
	la, lb, lc := floats.Norm(a, 2), floats.Norm(b, 2), floats.Norm(c, 2)
	angle := func(x, y []float64, lx, ly float64) float64 {
		if lx == 0 || ly == 0 {
			return 90
		}
		return math.Acos(floats.Dot(x, y)/(lx*ly)) * 180 / math.Pi
	}
	return [6]float64{la, lb, lc, angle(b, c, lb, lc), angle(a, c, la, lc), angle(a, b, la, lb)}
}

// cellFromPar builds a cell with a along x and b in the xy plane.
func cellFromPar(p [6]float64) [3][3]float64 {
	rad := math.Pi / 180
	cosA, cosB, cosG := math.Cos(p[3]*rad), math.Cos(p[4]*rad), math.Cos(p[5]*rad)
	sinG := math.Sin(p[5] * rad)
	cx := cosB
	cy := (cosA - cosB*cosG) / sinG
	cz := math.Sqrt(math.Max(0, 1-cx*cx-cy*cy))
	var cell [3][3]float64
	cell[0] = [3]float64{p[0], 0, 0}
	cell[1] = [3]float64{p[1] * cosG, p[1] * sinG, 0}
	cell[2] = [3]float64{p[2] * cx, p[2] * cy, p[2] * cz}
	for i := range cell {
		for k := range cell[i] {
			if math.Abs(cell[i][k]) < 1e-12 {
				cell[i][k] = 0
			}
		}
	}
	return cell
}
