package mlrcontent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeChanges(t *testing.T) {
	base := `<h1>Hello</h1><p style="color:#336699">Body</p><a class="btn-primary" href="#">Start now</a>`

	cases := []struct {
		name  string
		after string
		want  []string
	}{
		{"identical", base, []string{ChangeMinor}},
		{"headline", strings.Replace(base, "Hello", "Welcome", 1), []string{ChangeHeadline}},
		{"cta", strings.Replace(base, "Start now", "Ask your doctor", 1), []string{ChangeCTA}},
		{"colors", strings.Replace(base, "#336699", "#FF0000", 1), []string{ChangeColors}},
		{"expanded", base + "<p>" + strings.Repeat("more ", 30) + "</p>", []string{ChangeExpanded}},
		{"whitespace only", strings.Replace(base, "Hello", " Hello ", 1), []string{ChangeMinor}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SummarizeChanges(base, tc.after))
		})
	}

	long := base + "<p>" + strings.Repeat("more ", 30) + "</p>"
	assert.Equal(t, []string{ChangeCondensed}, SummarizeChanges(long, base))
}

func TestISIRegion(t *testing.T) {
	_, ok := ISIRegion(`<p>No safety block</p>`)
	assert.False(t, ok)

	region, ok := ISIRegion(`<div class="footer important-safety-info"><p>Risks</p></div>`)
	assert.True(t, ok)
	assert.Contains(t, region, "Risks")

	region, ok = ISIRegion(`<section id="isi-block"><b>Warning</b></section><div id="isi">later</div>`)
	assert.True(t, ok)
	assert.Contains(t, region, "Warning")
	assert.NotContains(t, region, "later")
}

func TestISIPreserved(t *testing.T) {
	before := `<h1>A</h1><div id="isi"><p>Risk text</p></div>`

	assert.True(t, ISIPreserved(before, `<h1>B</h1><div id="isi"><p>Risk text</p></div>`))
	assert.False(t, ISIPreserved(before, `<h1>A</h1><div id="isi"><p>Risk</p></div>`))
	assert.False(t, ISIPreserved(before, `<h1>A</h1>`))
	assert.True(t, ISIPreserved(`<h1>A</h1>`, `<h1>B</h1>`), "documents without a safety block pass")
}
