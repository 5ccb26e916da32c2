// Package htmltext reduces upstream titles, which may carry markup or
// entities, to single-line plain text.
package htmltext

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Plain strips tags, decodes entities and collapses whitespace.
func Plain(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapse(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapse(s)
	}
	return collapse(doc.Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
