package format

import "strconv"

// FormatYen renders an integer yen amount as a display string with
// thousands separators, e.g. 41200 -> "¥41,200". Used only at the
// projection boundary; the engine never parses these back.
func FormatYen(amount int64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	digits := strconv.FormatInt(amount, 10)
	var out []byte
	for i, d := range []byte(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, d)
	}

	formatted := "¥" + string(out)
	if negative {
		formatted = "-" + formatted
	}
	return formatted
}
