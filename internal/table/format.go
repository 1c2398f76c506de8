package table

import (
	"fmt"
	"math"
	"strconv"

	"github.com/steenlysgaard/texase/internal/asedb"
)

// FormatValue renders a raw column value the way it is shown in the table.
// Floats use two decimals unless very large or small.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if a := math.Abs(x); a > 1e6 || a < 1e-3 {
			return fmt.Sprintf("%#.3g", x)
		}
		return strconv.FormatFloat(x, 'f', 2, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		if x {
			return "True"
		}
		return "False"
	}
	return fmt.Sprint(v)
}

// FormatColumn is FormatValue with ages for the time columns.
func FormatColumn(column string, v any, now float64) string {
	if t, ok := v.(float64); ok && (column == "age" || column == "modified") {
		return asedb.TimeString(now - t)
	}
	return FormatValue(v)
}

// IsNumeric reports whether v is right aligned in the table.
func IsNumeric(v any) bool {
	switch v.(type) {
	case float64, int64, int:
		return true
	}
	return false
}

// TypeName is the name shown when an edit changes the type of a value.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "none"
	case string:
		return "str"
	case float64:
		return "float"
	case int64, int:
		return "int"
	case bool:
		return "bool"
	}
	return fmt.Sprintf("%T", v)
}
