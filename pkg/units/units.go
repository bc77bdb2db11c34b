// Package units converts between human-readable water measurements and the
// fixed-point integers the ledger stores.
//
// The wire format avoids floating point entirely: pH is stored multiplied
// by 100 and temperature (Celsius) by 10, so the ledger only ever compares
// integers.
//
// Examples:
//
//	units.ParsePH("7.2")          // 720
//	units.FormatPH(685)           // "6.85"
//	units.ParseTemperature("25")  // 250
//	units.FormatTemperature(183)  // "18.3"
//
// TDS (ppm) and turbidity (NTU) are whole numbers on the wire and need no
// conversion.
package units

import (
	"fmt"
	"strconv"
	"strings"
)

// Fixed-point scales used by the ledger wire format.
const (
	PHScale          = 100 // pH x100, e.g. 700 = 7.00
	TemperatureScale = 10  // Celsius x10, e.g. 250 = 25.0
)

// FormatPH renders a stored x100 pH value as a decimal string, e.g. 685
// becomes "6.85".
func FormatPH(v int64) string {
	return format(v, 2)
}

// ParsePH converts a decimal pH string into its x100 stored form. At most
// two decimal places are allowed since the wire format cannot represent
// more.
func ParsePH(s string) (int64, error) {
	v, err := parse(s, 2)
	if err != nil {
		return 0, fmt.Errorf("pH %q: %w", s, err)
	}
	return v, nil
}

// FormatTemperature renders a stored x10 Celsius value as a decimal string,
// e.g. 183 becomes "18.3".
func FormatTemperature(v int64) string {
	return format(v, 1)
}

// ParseTemperature converts a decimal Celsius string into its x10 stored
// form. At most one decimal place is allowed.
func ParseTemperature(s string) (int64, error) {
	v, err := parse(s, 1)
	if err != nil {
		return 0, fmt.Errorf("temperature %q: %w", s, err)
	}
	return v, nil
}

// format renders a fixed-point value with the given number of decimals.
func format(v int64, decimals int) string {
	scale := pow10(decimals)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%0*d", sign, v/scale, decimals, v%scale)
}

// parse converts a decimal string into a fixed-point value with the given
// number of decimals. "7", "7.2", and "7.20" all parse; "7.205" does not.
func parse(s string, decimals int) (int64, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}

	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0" // ".5" style input
	}
	if len(fracPart) > decimals {
		return 0, fmt.Errorf("at most %d decimal place(s) allowed", decimals)
	}
	// Right-pad the fraction so "7.2" and "7.20" mean the same thing.
	fracPart += strings.Repeat("0", decimals-len(fracPart))

	ip, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	var fp int64
	if fracPart != "" {
		fp, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number")
		}
	}

	scale := pow10(decimals)
	if ip > (1<<62)/scale {
		return 0, fmt.Errorf("value out of range")
	}
	v := ip*scale + fp
	if neg {
		v = -v
	}
	return v, nil
}

func pow10(n int) int64 {
	p := int64(1)
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}
