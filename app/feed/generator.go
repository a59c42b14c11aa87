package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"mime"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lysyi3m/newsdeck/app/content"
)

const excerptLength = 280

// Channel describes the exported feed itself.
type Channel struct {
	Title       string
	Link        string
	Description string
	SelfURL     string
	Version     string
}

type Generator struct {
	extractor *content.Extractor
}

func NewGenerator(extractor *content.Extractor) *Generator {
	if extractor == nil {
		extractor = content.NewExtractor()
	}
	return &Generator{extractor: extractor}
}

// Run renders items as an RSS 2.0 document in the order given.
func (g *Generator) Run(channel Channel, items []content.Item) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", cmp.Or(channel.Title, "Newsdeck"), 4)
	g.writeElement(&buf, "link", channel.Link, 4)
	g.writeElement(&buf, "description", cmp.Or(channel.Description, "Latest newsletters"), 4)

	if channel.SelfURL != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(channel.SelfURL)))
	}

	lastBuildDate := time.Now().In(time.Local)
	for _, item := range items {
		if !item.PublishedAt.IsZero() {
			lastBuildDate = item.PublishedAt
			break
		}
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Newsdeck/%s", cmp.Or(channel.Version, "dev")), 4)

	for _, item := range items {
		g.writeItem(&buf, channel, item)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, channel Channel, item content.Item) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(item.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", item.Title, 6)

	if channel.Link != "" {
		g.writeElement(buf, "link", strings.TrimRight(channel.Link, "/")+"/api/newsletters/"+item.ID, 6)
	}

	g.writeElement(buf, "description", cmp.Or(item.Subtitle, g.excerpt(item.Body), "No description available"), 6)

	if item.Body != "" {
		buf.WriteString("      <content:encoded><![CDATA[")
		buf.WriteString(strings.ReplaceAll(item.Body, "]]>", "]]]]><![CDATA[>"))
		buf.WriteString("]]></content:encoded>\n")
	}

	if !item.PublishedAt.IsZero() {
		g.writeElement(buf, "pubDate", item.PublishedAt.Format(time.RFC1123Z), 6)
	}

	g.writeElement(buf, "author", item.Author, 6)
	g.writeElement(buf, "category", item.Category, 6)
	for _, tag := range item.Tags {
		g.writeElement(buf, "category", strings.TrimSpace(tag), 6)
	}

	// RSS 2.0 allows a single enclosure per item
	if len(item.Images) > 0 && item.Images[0].URL != "" {
		image := item.Images[0].URL
		buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"0\" type=\"%s\" />\n",
			html.EscapeString(image),
			html.EscapeString(imageType(image))))
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) excerpt(body string) string {
	text := g.extractor.Readable(body)
	if utf8.RuneCountInString(text) <= excerptLength {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:excerptLength])) + "…"
}

func imageType(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(url))); strings.HasPrefix(t, "image/") {
		return t
	}
	return "image/jpeg"
}
