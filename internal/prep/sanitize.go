package prep

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipElements are HTML elements whose text is dropped entirely.
var skipElements = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Head:   true,
}

// PlainText reduces a meeting description, which calendar tools often
// deliver as HTML, to whitespace-normalized plain text. Plain input
// passes through unchanged apart from whitespace.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapse(s)
	}

	var b strings.Builder
	skip := 0
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapse(b.String())
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipElements[a] {
				skip++
			}
			if a == atom.Br || a == atom.P || a == atom.Li || a == atom.Div {
				b.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if skipElements[atom.Lookup(name)] && skip > 0 {
				skip--
			}
		}
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizeMessage trims user input before it enters the log.
func normalizeMessage(s string) string {
	return strings.TrimSpace(s)
}
