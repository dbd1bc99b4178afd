package markdown

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/quailyquaily/taskernetbot/internal/telegramutil"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	inlineSpaceRe = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
)

// RenderDescription converts a share description (HTML) into Telegram legacy
// Markdown. Conversion never panics; on failure it logs the input and returns "".
// A successful render always ends with a blank line.
func RenderDescription(raw string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("description_render_error", "error", fmt.Sprint(r), "html", raw)
			out = ""
		}
	}()

	text, err := convertHTML(raw)
	if err != nil {
		slog.Warn("description_render_error", "error", err.Error(), "html", raw)
		return ""
	}
	return text + "\n\n"
}

func convertHTML(raw string) (string, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(raw), body)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, n := range nodes {
		renderNode(&b, n, renderState{})
	}
	out := blankLinesRe.ReplaceAllString(b.String(), "\n\n")
	lines := strings.Split(out, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

// renderState tracks the enclosing entity. Legacy Markdown cannot nest
// entities and does not allow escapes inside them.
type renderState struct {
	delim string
	inPre bool
}

func (s renderState) inEntity() bool {
	return s.delim != "" || s.inPre
}

func renderNode(b *strings.Builder, n *html.Node, st renderState) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(renderText(n.Data, st))
		return
	case html.ElementNode:
	default:
		renderChildren(b, n, st)
		return
	}

	switch n.Data {
	case "script", "style", "head", "title":
		return
	case "br":
		b.WriteString("\n")
		return
	case "b":
		wrapEntity(b, n, st, "*")
	case "i":
		wrapEntity(b, n, st, "_")
	case "code":
		if st.inPre {
			renderChildren(b, n, st)
			return
		}
		wrapEntity(b, n, st, "`")
	case "pre":
		if st.inEntity() {
			renderChildren(b, n, st)
			return
		}
		var inner strings.Builder
		renderChildren(&inner, n, renderState{inPre: true})
		content := strings.Trim(inner.String(), "\n")
		if strings.TrimSpace(content) == "" {
			return
		}
		b.WriteString("\n```\n")
		b.WriteString(content)
		b.WriteString("\n```\n")
	case "a":
		renderLink(b, n, st)
	case "p", "div", "li", "ul", "ol", "h1", "h2", "h3", "h4", "h5", "h6":
		renderChildren(b, n, st)
		if !st.inEntity() {
			b.WriteString("\n")
		}
	default:
		// u, s, span, tg-emoji and anything outside the allow-list keep
		// their text only.
		renderChildren(b, n, st)
	}
}

func renderChildren(b *strings.Builder, n *html.Node, st renderState) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderNode(b, c, st)
	}
}

func wrapEntity(b *strings.Builder, n *html.Node, st renderState, delim string) {
	if st.inEntity() {
		renderChildren(b, n, st)
		return
	}
	var inner strings.Builder
	renderChildren(&inner, n, renderState{delim: delim})
	content := inner.String()
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		b.WriteString(content)
		return
	}
	// Keep surrounding whitespace outside the delimiters.
	lead := content[:strings.Index(content, trimmed)]
	trail := content[len(lead)+len(trimmed):]
	b.WriteString(lead)
	b.WriteString(delim)
	b.WriteString(trimmed)
	b.WriteString(delim)
	b.WriteString(trail)
}

func renderLink(b *strings.Builder, n *html.Node, st renderState) {
	href := strings.TrimSpace(attr(n, "href"))
	if st.inEntity() || href == "" || !isSafeLink(href) {
		renderChildren(b, n, st)
		return
	}
	var inner strings.Builder
	renderChildren(&inner, n, renderState{delim: "]"})
	label := strings.TrimSpace(inner.String())
	if label == "" {
		label = href
	}
	b.WriteString("[")
	b.WriteString(strings.ReplaceAll(label, "]", ""))
	b.WriteString("](")
	b.WriteString(strings.ReplaceAll(href, ")", "%29"))
	b.WriteString(")")
}

func renderText(text string, st renderState) string {
	if st.inPre {
		return text
	}
	text = inlineSpaceRe.ReplaceAllString(text, " ")
	if st.delim != "" {
		return strings.ReplaceAll(text, st.delim, "")
	}
	return telegramutil.EscapeMarkdown(text)
}

func isSafeLink(href string) bool {
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "tg", "mailto":
		return true
	default:
		return false
	}
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
