// Package htmlmd converts CMS-rendered HTML into text representations
// suitable for the remote search service: a markdown rendition used as the
// indexing payload, and a condensed plain-text rendition used for
// diagnostics and previews.
//
// Both conversions are best-effort. Malformed markup never produces an
// error for the caller: the markdown converter falls back to the plain-text
// walk, and the plain-text walk itself degrades to returning whatever text
// the parser could recover.
package htmlmd

import (
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
)

// languageClass matches the class attribute value carrying a fenced-code
// language hint, e.g. class="language-php".
var languageClass = regexp.MustCompile(`^language-[a-zA-Z0-9_+-]+$`)

// Normalizer converts HTML to markdown or plain text. The zero value is not
// usable; create one with New.
type Normalizer struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
}

// New creates a Normalizer with the standard sanitation policy and
// commonmark rendering rules.
func New() *Normalizer {
	policy := bluemonday.UGCPolicy()
	// Keep language hints on code blocks so fences come out annotated.
	policy.AllowAttrs("class").Matching(languageClass).OnElements("code")

	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(
				commonmark.WithHorizontalRule("---"),
			),
		),
	)

	return &Normalizer{policy: policy, conv: conv}
}

// Convert renders HTML as markdown: paragraphs become blank-line separated
// blocks, strong/em become ** and * spans, links and images become
// [text](href) and ![alt](src), lists get -/1. prefixes, blockquotes get
// "> " prefixes, pre/code becomes a fenced block with the language inferred
// from a language-xxx class, headings map to #..###### and hr to ---.
// Unknown tags are stripped with their content inlined.
//
// Input is sanitized first, so script/style and event-handler attributes
// never reach the output. On converter failure the plain-text rendition is
// returned instead.
func (n *Normalizer) Convert(html string) string {
	clean := n.policy.Sanitize(html)
	md, err := n.conv.ConvertString(clean)
	if err != nil {
		return n.ToPlainText(html)
	}
	return strings.TrimSpace(md)
}
