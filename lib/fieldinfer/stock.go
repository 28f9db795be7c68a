package fieldinfer

import (
	"regexp"
	"strconv"
	"strings"
)

// StockRecord is one row of the legacy stock grid mapped to typed
// fields. Zero values mean the column was absent or unparseable.
type StockRecord struct {
	Name           string
	Laboratory     string
	PurchasePrice  float64
	SalePrice      float64
	CurrentStock   int
	AvailableStock int
	MinStock       int
	MinAgeMonths   int
	MaxAgeMonths   int
}

// InferStockColumns guesses which cells of a stock row carry which
// fields. The legacy grid's column order varies between deployments,
// so positions cannot be trusted beyond name and laboratory. The
// heuristic, in order:
//
//   - first cell: name, second cell: laboratory
//   - first monetary-looking cell: sale price, next distinct monetary
//     value: purchase price
//   - first bare integer: available stock, second: current stock
//     (defaulting to available when absent), and when three or more
//     integers are present the last one is minimum stock
//   - trailing cells carrying an age marker ("2 meses", "1 ano") are
//     the indication age range, minimum then maximum
//
// The second return value reports whether any fallback was taken
// (missing current stock, missing minimum stock), so callers can flag
// the row instead of silently trusting the guess.
func InferStockColumns(cells []string) (StockRecord, bool) {
	var rec StockRecord
	if len(cells) == 0 {
		return rec, true
	}

	rec.Name = cells[0]
	if len(cells) > 1 {
		rec.Laboratory = cells[1]
	}

	for _, cell := range cells {
		if !looksLikeMoney(cell) {
			continue
		}
		value := ParseMoney(cell)
		if value <= 0 {
			continue
		}
		if rec.SalePrice == 0 {
			rec.SalePrice = value
			continue
		}
		if rec.PurchasePrice == 0 && value != rec.SalePrice {
			rec.PurchasePrice = value
		}
	}

	var quantities []int
	for _, cell := range cells[1:] {
		if looksLikeMoney(cell) || looksLikeAge(cell) || !looksLikeQuantity(cell) {
			continue
		}
		quantities = append(quantities, ParseQuantity(cell))
	}

	// the age columns, when the deployment has them, come last
	if n := len(cells); n >= 2 {
		rec.MinAgeMonths = parseAgeMonths(cells[n-2])
		rec.MaxAgeMonths = parseAgeMonths(cells[n-1])
	}

	fallback := false
	switch {
	case len(quantities) >= 3:
		rec.AvailableStock = quantities[0]
		rec.CurrentStock = quantities[1]
		rec.MinStock = quantities[len(quantities)-1]
	case len(quantities) == 2:
		rec.AvailableStock = quantities[0]
		rec.CurrentStock = quantities[1]
		fallback = true
	case len(quantities) == 1:
		rec.AvailableStock = quantities[0]
		rec.CurrentStock = quantities[0]
		fallback = true
	default:
		fallback = true
	}

	return rec, fallback
}

// agePattern matches the legacy grid's age renderings, a number
// followed by a pt-BR unit ("2 meses", "1 ano").
var agePattern = regexp.MustCompile(`(?i)(\d+)\s*(m[eê]s(?:es)?|anos?)`)

func looksLikeAge(text string) bool {
	return agePattern.MatchString(text)
}

// parseAgeMonths extracts an age in months from a cell like "2 meses"
// or "1 ano". Cells without an age unit yield 0.
func parseAgeMonths(text string) int {
	match := agePattern.FindStringSubmatch(text)
	if match == nil {
		return 0
	}
	value, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	if strings.HasPrefix(strings.ToLower(match[2]), "ano") {
		return value * 12
	}
	return value
}
