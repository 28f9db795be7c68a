// Package fieldinfer maps raw grid cell text to typed fields. The
// legacy system renders money and quantities in pt-BR locale formats
// and its column layout is not stable, so everything in here is
// best-effort and pure: no I/O, output depends solely on the input.
package fieldinfer

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	nonDigit        = regexp.MustCompile(`\D`)
	nonMoney        = regexp.MustCompile(`[^\d.]`)
	moneyishPattern = regexp.MustCompile(`\d+(?:[.,]\d{2})`)
)

// ParseMoney converts a locale-formatted price string to a float.
// "1.234,56" and "R$ 45,00" are Brazilian formats where `.` separates
// thousands and `,` separates decimals. Unparseable input yields 0.
func ParseMoney(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	text = strings.ReplaceAll(text, "R$", "")
	text = strings.ReplaceAll(text, " ", "")

	hasComma := strings.Contains(text, ",")
	hasDot := strings.Contains(text, ".")
	switch {
	case hasComma && hasDot:
		// 1.234,56 -> 1234.56
		text = strings.ReplaceAll(text, ".", "")
		text = strings.ReplaceAll(text, ",", ".")
	case hasComma:
		text = strings.ReplaceAll(text, ",", ".")
	}

	text = nonMoney.ReplaceAllString(text, "")
	if text == "" {
		return 0
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0
	}
	return value
}

// ParseQuantity strips everything that is not a digit and parses the
// remainder. Empty or unparseable input yields 0, never a negative.
func ParseQuantity(text string) int {
	digits := nonDigit.ReplaceAllString(strings.TrimSpace(text), "")
	if digits == "" {
		return 0
	}
	value, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return value
}

// ParseCPF normalizes a tax id to its digits for comparison.
func ParseCPF(cpf string) string {
	return nonDigit.ReplaceAllString(cpf, "")
}

// FormatCPF renders an 11-digit tax id in the canonical punctuated form
// the legacy system's masked filter input expects. Anything that is not
// 11 digits long is returned unchanged.
func FormatCPF(cpf string) string {
	digits := ParseCPF(cpf)
	if len(digits) != 11 {
		return cpf
	}
	return digits[0:3] + "." + digits[3:6] + "." + digits[6:9] + "-" + digits[9:11]
}

var dateLayouts = []string{"02/01/2006", "2006-01-02"}

// ParseDate accepts the two date renderings the legacy system uses.
func ParseDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, text)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// looksLikeMoney reports whether a cell renders a price. Quantities are
// bare integers, prices always carry two decimals in the legacy grid.
func looksLikeMoney(text string) bool {
	return moneyishPattern.MatchString(text)
}

// looksLikeQuantity reports whether the cell is a bare integer. The
// digits must appear verbatim so cells like "12/03/2024" don't count.
func looksLikeQuantity(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	digits := nonDigit.ReplaceAllString(text, "")
	return digits != "" && strings.Contains(text, digits)
}
