package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// quantizeCtx has enough precision for any price a register can emit.
var quantizeCtx = apd.BaseContext.WithPrecision(25)

// cleanNumeric strips the decoration legacy exports put on numbers:
// currency symbols, thousands separators, surrounding whitespace, and
// accounting-style parentheses for negatives ("(123)" means -123).
func cleanNumeric(raw string) (cleaned string, negative bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") && len(s) > 2 {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	return strings.TrimSpace(s), negative
}

// ParsePrice parses a legacy price value into a two-decimal-place
// decimal. Sign is preserved; the non-negative rule is enforced during
// validation, not here.
func ParsePrice(raw string) (apd.Decimal, error) {
	cleaned, negative := cleanNumeric(raw)
	if cleaned == "" {
		return apd.Decimal{}, fmt.Errorf("empty value")
	}

	d, _, err := apd.NewFromString(cleaned)
	if err != nil {
		return apd.Decimal{}, fmt.Errorf("not a decimal: %q", strings.TrimSpace(raw))
	}
	if negative {
		d.Neg(d)
	}

	var quantized apd.Decimal
	if _, err := quantizeCtx.Quantize(&quantized, d, -2); err != nil {
		return apd.Decimal{}, fmt.Errorf("quantize %q: %w", strings.TrimSpace(raw), err)
	}
	return quantized, nil
}

// ParseQuantity parses a legacy quantity into an integer. Fractional
// digits truncate toward zero, the way the exports' consumers always
// treated them.
func ParseQuantity(raw string) (int64, error) {
	cleaned, negative := cleanNumeric(raw)
	if cleaned == "" {
		return 0, fmt.Errorf("empty value")
	}

	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(cleaned, 64)
		// int64(f) is undefined for values outside int64 range, and
		// ParseFloat accepts "inf" and "nan".
		if ferr != nil || math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, fmt.Errorf("not an integer: %q", strings.TrimSpace(raw))
		}
		n = int64(f)
	}
	if negative {
		n = -n
	}
	return n, nil
}
