package asedb

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Atoms is one atomic structure together with the calculator results and
// metadata that travel with it into and out of the database.
type Atoms struct {
	Numbers        []int
	Positions      [][3]float64
	Cell           [3][3]float64
	PBC            [3]bool
	InitialMagmoms []float64
	InitialCharges []float64

	// calculator results; nil/empty when absent
	Calculator           string
	CalculatorParameters map[string]any
	Energy               *float64
	Forces               [][3]float64
	Stress               []float64 // Voigt order, 6 components
	Magmom               *float64

	KeyValuePairs map[string]any
	Data          map[string]any
}

// Symbols returns the chemical symbols of all atoms.
func (a *Atoms) Symbols() []string {
	out := make([]string, len(a.Numbers))
	for i, z := range a.Numbers {
		out[i] = Symbol(z)
	}
	return out
}

// Formula returns the chemical formula in Hill order.
func (a *Atoms) Formula() string {
	return Formula(a.Numbers)
}

// Formula returns the Hill formula for a list of atomic numbers: C first, H
// second, the rest alphabetical; without carbon everything is alphabetical.
func Formula(numbers []int) string {
	count := map[string]int{}
	for _, z := range numbers {
		count[Symbol(z)]++
	}
	var order []string
	_, hasC := count["C"]
	if hasC {
		order = append(order, "C")
		if _, ok := count["H"]; ok {
			order = append(order, "H")
		}
	}
	var rest []string
	for s := range count {
		if hasC && (s == "C" || s == "H") {
			continue
		}
		rest = append(rest, s)
	}
	sort.Strings(rest)
	order = append(order, rest...)

	var b strings.Builder
	for _, s := range order {
		b.WriteString(s)
		if n := count[s]; n > 1 {
			b.WriteString(strconv.Itoa(n))
		}
	}
	return b.String()
}

// Volume returns the cell volume, or nil when the cell does not span
// three dimensions.
func (a *Atoms) Volume() *float64 {
	flat := make([]float64, 0, 9)
	for _, v := range a.Cell {
		flat = append(flat, v[:]...)
	}
	det := mat.Det(mat.NewDense(3, 3, flat))
	if math.Abs(det) < 1e-12 {
		return nil
	}
	v := math.Abs(det)
	return &v
}

// Mass returns the total mass.
func (a *Atoms) Mass() float64 {
	m := make([]float64, len(a.Numbers))
	for i, z := range a.Numbers {
		m[i] = Mass(z)
	}
	return floats.Sum(m)
}

// Charge returns the sum of the initial charges, nil when none are set.
func (a *Atoms) Charge() *float64 {
	if len(a.InitialCharges) == 0 {
		return nil
	}
	c := floats.Sum(a.InitialCharges)
	return &c
}

// Fmax returns the largest force norm, nil without forces.
func (a *Atoms) Fmax() *float64 {
	if len(a.Forces) == 0 {
		return nil
	}
	var fmax float64
	for _, f := range a.Forces {
		fmax = math.Max(fmax, floats.Norm(f[:], 2))
	}
	return &fmax
}

// Smax returns the largest absolute stress component, nil without stress.
func (a *Atoms) Smax() *float64 {
	if len(a.Stress) == 0 {
		return nil
	}
	abs := make([]float64, len(a.Stress))
	for i, s := range a.Stress {
		abs[i] = math.Abs(s)
	}
	smax := floats.Max(abs)
	return &smax
}
