package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// minShellText is the visible-text floor below which a page body is treated
// as an unrendered application shell.
const minShellText = 200

// mountPoints are the empty containers client-side frameworks render into.
var mountPoints = []string{"#root", "#app", "#__next", "#__nuxt", "#___gatsby"}

var noscriptNags = []string{"enable javascript", "javascript is required", "requires javascript"}

// IsShell reports whether the document looks like a script-rendered page
// whose content has not been rendered yet: an empty framework mount point,
// a noscript nag, or almost no visible body text next to executable
// scripts. A compact page without scripts is server-rendered and is not a
// shell.
func (d *Document) IsShell() bool {
	for _, id := range mountPoints {
		s := d.doc.Find(id).First()
		if len(s.Nodes) > 0 && strings.TrimSpace(s.Text()) == "" {
			return true
		}
	}
	nag := strings.ToLower(d.doc.Find("noscript").Text())
	for _, n := range noscriptNags {
		if strings.Contains(nag, n) {
			return true
		}
	}
	return utf8.RuneCountInString(d.VisibleText()) < minShellText && d.hasExecutableScript()
}

func (d *Document) hasExecutableScript() bool {
	found := false
	d.doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		typ, _ := s.Attr("type")
		switch strings.ToLower(strings.TrimSpace(typ)) {
		case "", "module", "text/javascript", "application/javascript":
			found = true
		}
		return !found
	})
	return found
}

// VisibleText returns the whitespace-collapsed body text, scripts and styles
// excluded.
func (d *Document) VisibleText() string {
	body := d.doc.Find("body").First()
	if len(body.Nodes) == 0 {
		return ""
	}
	return collapse(collectText(body.Nodes[0]))
}
