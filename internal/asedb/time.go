package asedb

import (
	"fmt"
	"math"
	"time"
)

// ASE stores ctime/mtime as years since 2000-01-01.
const (
	t2000 = 946681200.0
	year  = 31557600.0
)

var unitSeconds = []struct {
	unit    string
	seconds float64
}{
	{"y", year},
	{"w", 604800},
	{"d", 86400},
	{"h", 3600},
	{"m", 60},
	{"s", 1},
}

// Now returns the current time in database units.
func Now() float64 {
	return ToTime(time.Now())
}

// ToTime converts a wall clock time to database units.
func ToTime(t time.Time) float64 {
	return (float64(t.UnixNano())/1e9 - t2000) / year
}

// TimeString renders a duration in database units as a short age such as
// "3d" or "12m", choosing the largest unit above five.
func TimeString(t float64) string {
	t *= year
	var x float64
	var unit string
	for _, u := range unitSeconds {
		x = t / u.seconds
		unit = u.unit
		if x > 5 {
			break
		}
	}
	return fmt.Sprintf("%.0f%s", math.Round(x), unit)
}
