package content

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Extractor turns newsletter bodies into plain text.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// blocks break words apart when flattened, so adjacent elements never merge.
var blocks = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Figcaption: true, atom.Figure: true, atom.Footer: true, atom.Form: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true,
	atom.Td: true, atom.Th: true, atom.Tr: true, atom.Ul: true,
}

// PlainText returns body unchanged unless it carries HTML markup, in which case
// every text node is kept with block elements separated by whitespace.
// Parse failures fall back to the raw body.
func (e *Extractor) PlainText(body string) string {
	if !looksLikeHTML(body) {
		return body
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		slog.Debug("Plain text extraction failed", "error", err, "body_length", len(body))
		return body
	}
	doc.Find("script, style, noscript, template").Remove()

	var b strings.Builder
	for _, node := range doc.Nodes {
		flatten(&b, node)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Readable returns the main article text of a body on a single line, with page
// chrome dropped from HTML. Fragments where readability keeps too little fall
// back to PlainText.
func (e *Extractor) Readable(body string) string {
	plain := strings.Join(strings.Fields(e.PlainText(body)), " ")
	if !looksLikeHTML(body) {
		return plain
	}

	article, err := readability.FromReader(strings.NewReader(body), nil)
	if err != nil {
		slog.Debug("Readable extraction failed", "error", err, "body_length", len(body))
		return plain
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len(text)*2 < len(plain) {
		return plain
	}
	return text
}

func flatten(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode:
		return
	}

	block := n.Type == html.ElementNode && blocks[n.DataAtom]
	if block {
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		flatten(b, c)
	}
	if block {
		b.WriteByte(' ')
	}
}

func looksLikeHTML(s string) bool {
	open := strings.IndexByte(s, '<')
	if open < 0 {
		return false
	}
	return strings.IndexByte(s[open:], '>') > 0
}
