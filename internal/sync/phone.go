package sync

import "strings"

// NormalizePhone brings a raw phone string to E.164. Kazakhstan numbers
// stored with the legacy 8 prefix or without a country code become +7;
// anything else keeps its digits behind a plus, and inputs with no digits
// pass through untouched.
func NormalizePhone(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	if len(d) == 11 && d[0] == '8' {
		d = "7" + d[1:]
	}
	if len(d) == 11 && d[0] == '7' {
		return "+" + d
	}
	if len(d) == 10 {
		return "+7" + d
	}
	if len(d) > 0 {
		return "+" + d
	}
	return raw
}
