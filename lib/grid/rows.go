package grid

import (
	"fmt"
	"strings"

	"clinicsync-backend/lib/htmlutil"
	"clinicsync-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

// Row is one extracted data row. Cells hold the per-column text with
// nested label/link text preferred over whole-cell text.
type Row struct {
	Cells []string
	// Text is the flattened text of the whole row, used for
	// natural-key containment checks.
	Text string
}

// CellText returns the text of the i-th cell, or "" when the row is
// shorter than that.
func (r Row) CellText(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

// noRecordsMarkers are the phrasings the legacy system uses for an
// empty result set.
var noRecordsMarkers = []string{
	"nenhum registro encontrado",
	"nenhum registro",
}

// skipRowClasses mark non-data rows: sticky headers and pager rows.
var skipRowClasses = []string{"sticky", "gridview-pager", "pagination-container"}

// ParseRows extracts the data rows of the identified grid from a full
// page HTML snapshot.
func ParseRows(pageHTML, gridID string) ([]Row, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}

	grid := doc.Find("#" + gridID)
	if grid.Length() == 0 {
		return nil, fmt.Errorf("grid %s not found in page", gridID)
	}

	if hasNoRecordsMarker(grid) {
		return nil, nil
	}

	var rows []Row
	grid.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if !isDataRow(tr, gridID) {
			return
		}
		row := Row{Text: textutil.CollapseSpaces(tr.Text())}
		tr.ChildrenFiltered("td").Each(func(_ int, td *goquery.Selection) {
			row.Cells = append(row.Cells, htmlutil.InnerText(td))
		})
		if len(row.Cells) > 0 && row.Text != "" {
			rows = append(rows, row)
		}
	})
	return rows, nil
}

func hasNoRecordsMarker(grid *goquery.Selection) bool {
	text := strings.ToLower(grid.Text())
	for _, marker := range noRecordsMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func isDataRow(tr *goquery.Selection, gridID string) bool {
	classes := strings.ToLower(tr.AttrOr("class", ""))
	for _, skip := range skipRowClasses {
		if strings.Contains(classes, skip) {
			return false
		}
	}
	// header rows use th cells
	if tr.ChildrenFiltered("th").Length() > 0 {
		return false
	}
	// the filter row is the grid's first child control and carries
	// input widgets
	if tr.Find("input, select").Length() > 0 {
		return false
	}
	return tr.ChildrenFiltered("td").Length() > 0
}

// pagerHasNext reports whether the page snapshot contains a next-page
// affordance for the grid.
func pagerHasNext(pageHTML, gridID string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return false
	}
	found := false
	doc.Find("#" + gridID + " a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := a.AttrOr("href", "") + a.AttrOr("onclick", "")
		if strings.Contains(href, "Page$Next") || strings.Contains(href, "Page%24Next") {
			found = true
			return false
		}
		return true
	})
	if found {
		return true
	}
	doc.Find("#" + gridID + " input").EachWithBreak(func(_ int, in *goquery.Selection) bool {
		src := in.AttrOr("src", "")
		onclick := in.AttrOr("onclick", "")
		if strings.Contains(src, "resultset_next") && strings.Contains(onclick, "Page$Next") {
			found = true
			return false
		}
		return true
	})
	return found
}
