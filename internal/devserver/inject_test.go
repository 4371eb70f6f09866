package devserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInjectHead(t *testing.T) {
	const snippet = "<script>x()</script>"
	cases := []struct {
		name, in, want string
	}{
		{
			name: "after head",
			in:   `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"></head><body></body></html>`,
			want: `<!DOCTYPE html><html lang="en"><head><script>x()</script><meta charset="utf-8"></head><body></body></html>`,
		},
		{
			name: "head with attributes keeps its casing",
			in:   `<HEAD data-x="1"><title>t</title></HEAD>`,
			want: `<HEAD data-x="1"><script>x()</script><title>t</title></HEAD>`,
		},
		{
			name: "no head",
			in:   `<!-- c --><html><body><p>hi</p></body></html>`,
			want: `<!-- c --><html><script>x()</script><body><p>hi</p></body></html>`,
		},
		{
			name: "fragment",
			in:   `hello`,
			want: `hello<script>x()</script>`,
		},
		{
			name: "head text inside a script is not a head",
			in:   `<script>var s = "<head>";</script><head></head>`,
			want: `<script>x()</script><script>var s = "<head>";</script><head></head>`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, string(injectHead([]byte(tc.in), snippet)))
		})
	}
}

func TestPageSnippet(t *testing.T) {
	assert.Equal(t, "<script>a</script><script>b</script>", pageSnippet("a", "b"))
}
