package classifier

import (
	"fmt"
	"math/big"
	"strings"
)

// Validator is a hard gate run on every regex match of a recognizer.
// A match that fails validation is discarded regardless of its score.
type Validator func(value string) bool

// validators maps the YAML `validate` field to its implementation.
var validators = map[string]Validator{
	"luhn": func(v string) bool { return luhnValid(stripNonDigits(v)) },
	"iban": func(v string) bool {
		clean := strings.ToUpper(strings.ReplaceAll(v, " ", ""))
		return validateIBANLength(clean) && validateIBANChecksum(clean)
	},
	"verhoeff": func(v string) bool { return verhoeffValid(stripNonDigits(v)) },
	"in_pan":   validatePAN,
	"us_ssn":   validateUSSSN,
}

// lookupValidator resolves a validator name; the empty name means no gate.
func lookupValidator(name string) (Validator, error) {
	if name == "" {
		return nil, nil
	}
	v, ok := validators[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown validator %q", ErrConfiguration, name)
	}
	return v, nil
}

// luhnValid checks whether a digit string passes the Luhn algorithm (ISO/IEC 7812).
func luhnValid(number string) bool {
	n := len(number)
	if n < 2 {
		return false
	}
	sum := 0
	alt := false
	for i := n - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

// IBANLengths is the registered IBAN length per country code (ISO 13616).
var IBANLengths = map[string]int{
	"AD": 24, "AE": 23, "AT": 20, "BE": 16, "BG": 22, "CH": 21, "CY": 28,
	"CZ": 24, "DE": 22, "DK": 18, "EE": 20, "ES": 24, "FI": 18, "FR": 27,
	"GB": 22, "GR": 27, "HR": 21, "HU": 28, "IE": 22, "IS": 26, "IT": 27,
	"LI": 21, "LT": 20, "LU": 20, "LV": 21, "MC": 27, "MT": 31, "NL": 18,
	"NO": 15, "PL": 28, "PT": 25, "RO": 24, "SA": 24, "SE": 24, "SI": 19,
	"SK": 24, "SM": 27,
}

// validateIBANChecksum verifies the MOD-97 check digits per ISO 13616.
// The IBAN is rearranged (country+check moved to end) and converted to digits
// (A=10, B=11, ..., Z=35) then checked: remainder must equal 1.
func validateIBANChecksum(iban string) bool {
	if len(iban) < 5 {
		return false
	}
	rearranged := iban[4:] + iban[:4]
	var numStr strings.Builder
	for _, ch := range rearranged {
		switch {
		case ch >= '0' && ch <= '9':
			numStr.WriteRune(ch)
		case ch >= 'A' && ch <= 'Z':
			fmt.Fprintf(&numStr, "%d", ch-'A'+10)
		default:
			return false
		}
	}
	n := new(big.Int)
	if _, ok := n.SetString(numStr.String(), 10); !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}

// validateIBANLength checks that the IBAN has the correct length for its country code.
func validateIBANLength(iban string) bool {
	if len(iban) < 2 {
		return false
	}
	expected, ok := IBANLengths[iban[:2]]
	return ok && len(iban) == expected
}

// Verhoeff tables (dihedral group D5), used by Aadhaar numbers.
var (
	verhoeffMul = [10][10]int{
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{1, 2, 3, 4, 0, 6, 7, 8, 9, 5},
		{2, 3, 4, 0, 1, 7, 8, 9, 5, 6},
		{3, 4, 0, 1, 2, 8, 9, 5, 6, 7},
		{4, 0, 1, 2, 3, 9, 5, 6, 7, 8},
		{5, 9, 8, 7, 6, 0, 4, 3, 2, 1},
		{6, 5, 9, 8, 7, 1, 0, 4, 3, 2},
		{7, 6, 5, 9, 8, 2, 1, 0, 4, 3},
		{8, 7, 6, 5, 9, 3, 2, 1, 0, 4},
		{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
	}
	verhoeffPerm = [8][10]int{
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{1, 5, 7, 6, 2, 8, 3, 0, 9, 4},
		{5, 8, 0, 3, 7, 9, 6, 1, 4, 2},
		{8, 9, 1, 6, 0, 4, 3, 5, 2, 7},
		{9, 4, 5, 3, 1, 2, 6, 8, 7, 0},
		{4, 2, 8, 6, 5, 7, 3, 9, 0, 1},
		{2, 7, 9, 3, 8, 0, 6, 4, 1, 5},
		{7, 0, 4, 6, 9, 1, 3, 2, 5, 8},
	}
)

// verhoeffValid checks the trailing Verhoeff check digit of a digit string.
func verhoeffValid(number string) bool {
	if len(number) < 2 {
		return false
	}
	c := 0
	for i := 0; i < len(number); i++ {
		d := int(number[len(number)-1-i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		c = verhoeffMul[c][verhoeffPerm[i%8][d]]
	}
	return c == 0
}

// validatePAN checks the structure of an Indian Permanent Account Number:
// five letters, four digits, one letter, with a known holder-type code in
// the fourth position.
func validatePAN(v string) bool {
	v = strings.ToUpper(v)
	if len(v) != 10 {
		return false
	}
	for i := 0; i < 10; i++ {
		c := v[i]
		isLetter := c >= 'A' && c <= 'Z'
		isDigit := c >= '0' && c <= '9'
		if (i < 5 || i == 9) && !isLetter {
			return false
		}
		if i >= 5 && i < 9 && !isDigit {
			return false
		}
	}
	return strings.IndexByte("ABCFGHJLPT", v[3]) >= 0
}

// validateUSSSN rejects numbers the SSA never issues: area 000, 666 or
// 9xx, group 00, serial 0000, and single repeated digits.
func validateUSSSN(v string) bool {
	d := stripNonDigits(v)
	if len(d) != 9 {
		return false
	}
	if strings.Count(d, d[:1]) == 9 {
		return false
	}
	area, group, serial := d[:3], d[3:5], d[5:]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	return group != "00" && serial != "0000"
}

// stripNonDigits removes all non-digit characters from s.
func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
