package htmlmd

import (
	"strings"
	"testing"
)

func TestConvertEmphasis(t *testing.T) {
	n := New()
	md := n.Convert("<p><strong>Hi</strong> <em>there</em></p>")
	if !strings.Contains(md, "**Hi**") {
		t.Errorf("missing bold marker in %q", md)
	}
	if !strings.Contains(md, "*there*") {
		t.Errorf("missing italic marker in %q", md)
	}
}

func TestConvertStructure(t *testing.T) {
	n := New()

	tests := []struct {
		name string
		html string
		want []string
	}{
		{
			name: "heading",
			html: "<h2>Section</h2>",
			want: []string{"## Section"},
		},
		{
			name: "link",
			html: `<p>see <a href="https://example.com">docs</a></p>`,
			want: []string{"[docs](https://example.com)"},
		},
		{
			name: "image",
			html: `<p><img src="https://example.com/cat.png" alt="cat"></p>`,
			want: []string{"![cat](https://example.com/cat.png)"},
		},
		{
			name: "unordered list",
			html: "<ul><li>one</li><li>two</li></ul>",
			want: []string{"- one", "- two"},
		},
		{
			name: "ordered list",
			html: "<ol><li>first</li><li>second</li></ol>",
			want: []string{"1. first"},
		},
		{
			name: "blockquote",
			html: "<blockquote><p>wise words</p></blockquote>",
			want: []string{"> wise words"},
		},
		{
			name: "inline code",
			html: "<p>run <code>go vet</code> first</p>",
			want: []string{"`go vet`"},
		},
		{
			name: "fenced code with language",
			html: `<pre><code class="language-php">echo 1;</code></pre>`,
			want: []string{"```php", "echo 1;", "```"},
		},
		{
			name: "horizontal rule",
			html: "<p>a</p><hr><p>b</p>",
			want: []string{"---"},
		},
		{
			name: "unknown tag inlined",
			html: "<p><custom>kept text</custom></p>",
			want: []string{"kept text"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := n.Convert(tt.html)
			for _, w := range tt.want {
				if !strings.Contains(md, w) {
					t.Errorf("Convert(%q) = %q, missing %q", tt.html, md, w)
				}
			}
		})
	}
}

func TestConvertParagraphsSeparated(t *testing.T) {
	n := New()
	md := n.Convert("<p>first block</p><p>second block</p>")
	if !strings.Contains(md, "first block\n\nsecond block") {
		t.Errorf("paragraphs not blank-line separated: %q", md)
	}
}

func TestConvertStripsScript(t *testing.T) {
	n := New()
	md := n.Convert(`<p>safe</p><script>alert("x")</script>`)
	if strings.Contains(md, "alert") {
		t.Errorf("script content leaked: %q", md)
	}
}

func TestConvertMalformed(t *testing.T) {
	n := New()
	// Unclosed tags and stray brackets must not panic and should still
	// yield the recoverable text.
	md := n.Convert("<p><strong>broken<em>nest</p><div")
	if !strings.Contains(md, "broken") {
		t.Errorf("lost text on malformed input: %q", md)
	}
}

func TestToPlainTextImages(t *testing.T) {
	n := New()

	tests := []struct {
		html string
		want string
	}{
		{"<img alt='cat'>", "(image about cat)"},
		{`<img title="dog">`, "(image about dog)"},
		{`<img alt="cat" title="dog">`, "(image about cat)"},
		{"<img src='x.png'>", "(image)"},
	}
	for _, tt := range tests {
		if got := n.ToPlainText(tt.html); got != tt.want {
			t.Errorf("ToPlainText(%q) = %q, want %q", tt.html, got, tt.want)
		}
	}
}

func TestToPlainTextLinks(t *testing.T) {
	n := New()

	got := n.ToPlainText(`<a href="/x" title="the manual">click here</a>`)
	if got != "(link to the manual)" {
		t.Errorf("got %q", got)
	}
	got = n.ToPlainText(`<a href="/x">click here</a>`)
	if got != "(link)" {
		t.Errorf("got %q", got)
	}
}

func TestToPlainTextEntitiesAndWhitespace(t *testing.T) {
	n := New()

	got := n.ToPlainText("<p>it&#8217;s   fine</p>")
	if got != "it’s fine" {
		t.Errorf("got %q", got)
	}

	// Runs containing a newline collapse to one newline, plain runs to a
	// single space.
	got = n.ToPlainText("a  \t b\n\n\nc")
	if got != "a b\nc" {
		t.Errorf("got %q", got)
	}
}

func TestToPlainTextStripsTags(t *testing.T) {
	n := New()
	got := n.ToPlainText("<div><h1>Title</h1><script>nope()</script><p>body text</p></div>")
	if strings.Contains(got, "nope") {
		t.Errorf("script leaked: %q", got)
	}
	if !strings.Contains(got, "Title") || !strings.Contains(got, "body text") {
		t.Errorf("text lost: %q", got)
	}
}
