package htmlmd

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// ToPlainText renders HTML as condensed plain text: images collapse to
// "(image about ALT|TITLE)" or "(image)", links collapse to
// "(link to TITLE)" or "(link)" with their inner text dropped, every other
// tag is stripped with its text content kept, entities are decoded, and
// whitespace runs collapse (runs containing a line break become a single
// newline, the rest a single space). The result is trimmed.
func (n *Normalizer) ToPlainText(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		// The parser recovers from almost anything; if it still fails,
		// collapse whatever we were given.
		return collapseWhitespace(raw)
	}

	var sb strings.Builder
	flattenNode(doc, &sb)
	return collapseWhitespace(sb.String())
}

func flattenNode(node *html.Node, sb *strings.Builder) {
	switch node.Type {
	case html.TextNode:
		// Entities are already decoded by the tokenizer.
		sb.WriteString(node.Data)
		return
	case html.ElementNode:
		switch node.DataAtom {
		case atom.Script, atom.Style, atom.Noscript:
			return
		case atom.Img:
			sb.WriteString(describeImage(node))
			return
		case atom.A:
			// The whole anchor, inner text included, becomes a marker.
			sb.WriteString(describeLink(node))
			return
		case atom.Br:
			sb.WriteString("\n")
			return
		}
	}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		flattenNode(c, sb)
	}
}

func describeImage(node *html.Node) string {
	if alt := strings.TrimSpace(attr(node, "alt")); alt != "" {
		return "(image about " + alt + ")"
	}
	if title := strings.TrimSpace(attr(node, "title")); title != "" {
		return "(image about " + title + ")"
	}
	return "(image)"
}

func describeLink(node *html.Node) string {
	if title := strings.TrimSpace(attr(node, "title")); title != "" {
		return "(link to " + title + ")"
	}
	return "(link)"
}

func attr(node *html.Node, key string) string {
	for _, a := range node.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// collapseWhitespace replaces each whitespace run with a single newline when
// the run contains a line break, and a single space otherwise.
func collapseWhitespace(text string) string {
	collapsed := whitespaceRun.ReplaceAllStringFunc(text, func(run string) string {
		if strings.ContainsAny(run, "\r\n") {
			return "\n"
		}
		return " "
	})
	return strings.TrimSpace(collapsed)
}
