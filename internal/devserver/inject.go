package devserver

import (
	"bytes"
	"io"

	gohtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// injectHead inserts snippet right after the document's <head> start tag.
// Documents without a head get it before their first other element, or at
// the end. Everything else passes through byte for byte.
func injectHead(src []byte, snippet string) []byte {
	z := gohtml.NewTokenizer(bytes.NewReader(src))
	var out bytes.Buffer
	out.Grow(len(src) + len(snippet))
	injected := false

	for {
		tt := z.Next()
		if tt == gohtml.ErrorToken {
			if z.Err() != io.EOF {
				// Unparseable input: serve it untouched.
				return src
			}
			break
		}
		raw := append([]byte(nil), z.Raw()...)

		if !injected && tt == gohtml.StartTagToken {
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Html:
			case atom.Head:
				out.Write(raw)
				out.WriteString(snippet)
				injected = true
				continue
			default:
				out.WriteString(snippet)
				injected = true
			}
		}
		out.Write(raw)
	}
	if !injected {
		out.WriteString(snippet)
	}
	return out.Bytes()
}

// pageSnippet wraps scripts in script elements, in order.
func pageSnippet(scripts ...string) string {
	var b bytes.Buffer
	for _, s := range scripts {
		b.WriteString("<script>")
		b.WriteString(s)
		b.WriteString("</script>")
	}
	return b.String()
}
