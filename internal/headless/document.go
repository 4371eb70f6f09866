package headless

import (
	"fmt"
	"path"
	"strings"

	gohtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// pageScript is one classic script of a document, inline or external.
type pageScript struct {
	Src    string // resolved asset path for external scripts
	Text   string // inline source
	Module bool
}

// document is what a headless surface needs from parsed HTML.
type document struct {
	Title   string
	Scripts []pageScript
}

// parseDocument extracts the title and the executable scripts of an HTML
// document in document order. docPath resolves relative script sources.
func parseDocument(docPath string, src []byte) (*document, error) {
	root, err := gohtml.Parse(strings.NewReader(string(src)))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", docPath, err)
	}
	doc := &document{}
	var walk func(n *gohtml.Node)
	walk = func(n *gohtml.Node) {
		if n.Type == gohtml.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if doc.Title == "" {
					doc.Title = strings.TrimSpace(textContent(n))
				}
			case atom.Script:
				if s, ok := scriptOf(docPath, n); ok {
					doc.Scripts = append(doc.Scripts, s)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return doc, nil
}

func scriptOf(docPath string, n *gohtml.Node) (pageScript, bool) {
	var src, typ string
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "src":
			src = strings.TrimSpace(a.Val)
		case "type":
			typ = strings.ToLower(strings.TrimSpace(a.Val))
		}
	}
	switch typ {
	case "", "text/javascript", "application/javascript", "module":
	default:
		return pageScript{}, false
	}
	if src != "" {
		if strings.Contains(src, "://") || strings.HasPrefix(src, "//") {
			return pageScript{}, false
		}
		if !strings.HasPrefix(src, "/") {
			src = path.Join(path.Dir("/"+strings.TrimPrefix(docPath, "/")), src)
		}
		return pageScript{Src: src, Module: typ == "module"}, true
	}
	return pageScript{Text: textContent(n), Module: typ == "module"}, true
}

func textContent(n *gohtml.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == gohtml.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
