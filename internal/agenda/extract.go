// Package agenda pulls structured content out of free-text assistant
// replies: the <agenda>...</agenda> block with the participant's current
// agenda, and the end-of-conversation marker.
//
// Both functions here are total. Unbalanced or missing markup is not an
// error; it simply means the reply carries no agenda.
package agenda

import "strings"

// Markup vocabulary the assistant is instructed to emit.
const (
	OpenTag   = "<agenda>"
	CloseTag  = "</agenda>"
	EndMarker = "#EOC#"
)

// Extraction is the result of scanning one raw assistant reply.
type Extraction struct {
	// Block is the trimmed text between the tags. Only meaningful when
	// HasBlock is true; an empty block is still a block.
	Block    string
	HasBlock bool

	// Text is the reply with the agenda block, its tags and every end
	// marker removed, trimmed of surrounding whitespace.
	Text string

	// Ended reports whether the raw reply contained EndMarker.
	Ended bool
}

// Extract scans raw for an agenda block and the end marker.
//
// The first OpenTag and the first CloseTag are used. A block exists only
// when both are present and the open tag comes first; otherwise the text
// is left untouched as far as agenda markup goes.
func Extract(raw string) Extraction {
	ex := Extraction{Ended: strings.Contains(raw, EndMarker)}

	text := raw
	start := strings.Index(text, OpenTag)
	end := strings.Index(text, CloseTag)
	if start >= 0 && end >= 0 && start < end {
		ex.Block = strings.TrimSpace(text[start+len(OpenTag) : end])
		ex.HasBlock = true
		text = text[:start] + text[end+len(CloseTag):]
	}

	// Removing one marker can join its neighbours into another.
	for strings.Contains(text, EndMarker) {
		text = strings.ReplaceAll(text, EndMarker, "")
	}
	ex.Text = strings.TrimSpace(text)
	return ex
}
