package mlrcontent

import (
	"bytes"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Change summary labels.
const (
	ChangeHeadline  = "Updated headline"
	ChangeCTA       = "Modified call-to-action"
	ChangeColors    = "Adjusted colors"
	ChangeExpanded  = "Expanded content"
	ChangeCondensed = "Condensed content"
	ChangeMinor     = "Minor adjustments"
)

const lengthDeltaThreshold = 100

var colorPattern = regexp.MustCompile(`#[0-9a-fA-F]{3,8}\b|rgba?\([^)]*\)`)

// SummarizeChanges labels the differences between two HTML documents.
//
// It is a best-effort audit hint built from a few independent heuristics
// (heading text, call-to-action text, color tokens, overall length). It is
// not a diff and may both miss and over-report changes. The result is never
// empty.
func SummarizeChanges(before, after string) []string {
	var labels []string
	b, a := outline(before), outline(after)

	if !slices.Equal(b.headings, a.headings) {
		labels = append(labels, ChangeHeadline)
	}
	if !slices.Equal(b.ctas, a.ctas) {
		labels = append(labels, ChangeCTA)
	}
	if !slices.Equal(colorTokens(before), colorTokens(after)) {
		labels = append(labels, ChangeColors)
	}

	switch delta := len(after) - len(before); {
	case delta > lengthDeltaThreshold:
		labels = append(labels, ChangeExpanded)
	case delta < -lengthDeltaThreshold:
		labels = append(labels, ChangeCondensed)
	}

	if len(labels) == 0 {
		labels = append(labels, ChangeMinor)
	}
	return labels
}

type htmlOutline struct {
	headings []string
	ctas     []string
}

func outline(doc string) htmlOutline {
	var out htmlOutline
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return out
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.DataAtom == atom.H1 || n.DataAtom == atom.H2 || n.DataAtom == atom.H3:
				out.headings = append(out.headings, textOf(n))
				return
			case n.DataAtom == atom.Button || (n.DataAtom == atom.A && hasClassToken(n, "cta", "button", "btn")):
				out.ctas = append(out.ctas, textOf(n))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func hasClassToken(n *html.Node, tokens ...string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(strings.ToLower(attr.Val)) {
			for _, t := range tokens {
				if c == t || strings.HasPrefix(c, t+"-") || strings.HasSuffix(c, "-"+t) {
					return true
				}
			}
		}
	}
	return false
}

func colorTokens(doc string) []string {
	tokens := colorPattern.FindAllString(strings.ToLower(doc), -1)
	for i, t := range tokens {
		tokens[i] = strings.ReplaceAll(t, " ", "")
	}
	slices.Sort(tokens)
	return slices.Compact(tokens)
}

// ISIRegion renders the first element whose id or class marks it as the
// safety-information block. ok is false when the document has none.
func ISIRegion(doc string) (region string, ok bool) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", false
	}
	node := findISI(root)
	if node == nil {
		return "", false
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, node); err != nil {
		return "", false
	}
	return buf.String(), true
}

// ISIPreserved reports whether the safety-information region of before is
// present and unchanged in after. Documents without such a region pass.
func ISIPreserved(before, after string) bool {
	want, ok := ISIRegion(before)
	if !ok {
		return true
	}
	got, ok := ISIRegion(after)
	return ok && got == want
}

func findISI(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && isISINode(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findISI(c); found != nil {
			return found
		}
	}
	return nil
}

func isISINode(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key != "id" && attr.Key != "class" {
			continue
		}
		for _, name := range strings.Fields(strings.ToLower(attr.Val)) {
			if name == "isi" || strings.HasPrefix(name, "isi-") || strings.HasPrefix(name, "isi_") ||
				strings.HasSuffix(name, "-isi") || strings.Contains(name, "safety") {
				return true
			}
		}
	}
	return false
}
