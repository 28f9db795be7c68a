package htmlutil

import (
	"bytes"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// InnerText extracts the most specific text of a table cell, preferring
// the text of nested span labels and anchors over the whole-cell text.
// Legacy WebForms grids wrap the real value in a span while the cell
// itself may carry sort arrows or padding.
func InnerText(cell *goquery.Selection) string {
	for _, sel := range []string{"span", "a"} {
		text := ""
		cell.Find(sel).Each(func(_ int, inner *goquery.Selection) {
			t := strings.TrimSpace(inner.Text())
			if t != "" {
				text = t
			}
		})
		if text != "" {
			return removeNonPrintable(text)
		}
	}
	var buffer strings.Builder
	for _, node := range cell.Nodes {
		buffer.WriteString(GetText(node))
	}
	return removeNonPrintable(strings.TrimSpace(buffer.String()))
}
