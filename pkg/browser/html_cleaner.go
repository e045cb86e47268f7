package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// PageText is page content reduced to readable, markdown-like text.
type PageText struct {
	Title       string
	Description string
	Text        string
	Truncated   bool
}

// htmlToText parses rawHTML and renders its visible content as markdown-like
// text: headings become "#" lines, links "[text](href)", list items "- ".
// Scripts, styles and other non-content elements are dropped.
func htmlToText(rawHTML string, maxLength int) (*PageText, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	w := &textWriter{max: maxLength}
	body := findElement(doc, "body")
	if body == nil {
		body = doc
	}
	w.walk(body)

	return &PageText{
		Title:       extractTitle(doc),
		Description: extractMetaDescription(doc),
		Text:        w.String(),
		Truncated:   w.truncated,
	}, nil
}

type textWriter struct {
	b         strings.Builder
	max       int
	truncated bool
	pendingNL int
}

func (w *textWriter) String() string {
	return strings.TrimSpace(w.b.String())
}

func (w *textWriter) full() bool {
	return w.max > 0 && w.b.Len() >= w.max
}

// newline requests n line breaks before the next text; breaks never stack
// beyond the largest request.
func (w *textWriter) newline(n int) {
	if n > w.pendingNL {
		w.pendingNL = n
	}
}

func (w *textWriter) write(s string) {
	if s == "" || w.truncated {
		return
	}
	if w.b.Len() > 0 && w.pendingNL > 0 {
		w.b.WriteString(strings.Repeat("\n", w.pendingNL))
	}
	w.pendingNL = 0

	if w.max > 0 && w.b.Len()+len(s) > w.max {
		remaining := w.max - w.b.Len()
		if remaining > 0 {
			w.b.WriteString(s[:remaining])
		}
		w.b.WriteString("...")
		w.truncated = true
		return
	}
	w.b.WriteString(s)
}

// writeText writes inline text, keeping a single space between runs.
func (w *textWriter) writeText(s string) {
	s = collapseSpace(s)
	if s == "" {
		return
	}
	if w.b.Len() > 0 && w.pendingNL == 0 && !strings.ContainsRune(".,;:!?)", rune(s[0])) {
		last := w.b.String()[w.b.Len()-1]
		if last != ' ' && last != '\n' && last != '(' && last != '[' {
			w.write(" ")
		}
	}
	w.write(s)
}

func (w *textWriter) walk(n *html.Node) {
	if w.full() {
		w.truncated = true
		return
	}

	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		w.writeText(n.Data)
		return
	case html.ElementNode:
		w.element(n)
		return
	}
	w.children(n)
}

func (w *textWriter) children(n *html.Node) {
	for c := n.FirstChild; c != nil && !w.truncated; c = c.NextSibling {
		w.walk(c)
	}
}

func (w *textWriter) element(n *html.Node) {
	tag := strings.ToLower(n.Data)
	if isSkippedElement(tag) {
		return
	}

	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		w.newline(2)
		w.write(strings.Repeat("#", int(tag[1]-'0')) + " ")
		w.pendingNL = 0
		w.children(n)
		w.newline(2)
	case "a":
		text := collapseSpace(nodeText(n))
		href := attr(n, "href")
		switch {
		case text == "":
			return
		case href == "" || strings.HasPrefix(href, "javascript:"):
			w.writeText(text)
		default:
			w.writeText(fmt.Sprintf("[%s](%s)", text, href))
		}
	case "li":
		w.newline(1)
		w.write("- ")
		w.pendingNL = 0
		w.children(n)
		w.newline(1)
	case "br":
		w.newline(1)
	case "img":
		if alt := collapseSpace(attr(n, "alt")); alt != "" {
			w.writeText(fmt.Sprintf("![%s]", alt))
		}
	case "input", "textarea", "select":
		if label := collapseSpace(attr(n, "placeholder")); label != "" {
			w.writeText(fmt.Sprintf("[%s: %s]", tag, label))
		}
		if tag == "select" {
			w.children(n)
		}
	default:
		block := isBlockElement(tag)
		if block {
			w.newline(2)
		}
		w.children(n)
		if block {
			w.newline(2)
		}
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && isSkippedElement(strings.ToLower(n.Data)) {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// isSkippedElement returns true for elements that should be completely removed
func isSkippedElement(tagName string) bool {
	switch tagName {
	case "script", "style", "noscript", "iframe", "embed", "object", "svg", "template", "head":
		return true
	}
	return false
}

// isBlockElement returns true for block-level elements (for formatting)
func isBlockElement(tagName string) bool {
	switch tagName {
	case "div", "p", "section", "article", "header", "footer", "nav", "main", "aside",
		"ul", "ol", "table", "tr", "form", "fieldset", "blockquote", "pre", "dl", "dt", "dd", "figure":
		return true
	}
	return false
}

// extractTitle extracts the page title from the document
func extractTitle(doc *html.Node) string {
	title := findElement(doc, "title")
	if title == nil || title.FirstChild == nil || title.FirstChild.Type != html.TextNode {
		return ""
	}
	return strings.TrimSpace(title.FirstChild.Data)
}

// extractMetaDescription extracts the meta description from the document
func extractMetaDescription(doc *html.Node) string {
	var description string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" && strings.EqualFold(attr(n, "name"), "description") {
			description = strings.TrimSpace(attr(n, "content"))
			return
		}
		for c := n.FirstChild; c != nil && description == ""; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return description
}
