package archive

import (
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultMaxContent bounds the text an Accumulator keeps (1MB).
const DefaultMaxContent = 1 << 20

// deltaPaths are tried in order on each chunk.
var deltaPaths = []string{
	"choices.0.delta.content", // OpenAI-compatible
	"delta.text",              // Anthropic content_block_delta
}

// Accumulator collects assistant text from stream chunks. It is not safe for
// concurrent use; one pump owns one accumulator.
type Accumulator struct {
	buf       strings.Builder
	max       int
	chunks    int
	truncated bool
}

// NewAccumulator creates an accumulator keeping at most max bytes of text.
func NewAccumulator(max int) *Accumulator {
	if max <= 0 {
		max = DefaultMaxContent
	}
	return &Accumulator{max: max}
}

// Add records one raw chunk.
func (a *Accumulator) Add(chunk []byte) {
	a.chunks++
	if a.truncated {
		return
	}

	for _, path := range deltaPaths {
		r := gjson.GetBytes(chunk, path)
		if r.Type != gjson.String {
			continue
		}
		text := r.String()
		if room := a.max - a.buf.Len(); len(text) > room {
			text = text[:room]
			a.truncated = true
		}
		a.buf.WriteString(text)
		return
	}
}

// Chunks returns the number of chunks seen.
func (a *Accumulator) Chunks() int {
	return a.chunks
}

// Content returns the text collected so far.
func (a *Accumulator) Content() string {
	return a.buf.String()
}

// Truncated reports whether text was dropped because of the size bound.
func (a *Accumulator) Truncated() bool {
	return a.truncated
}

// MessageContent extracts the assistant text of a one-shot completion body.
func MessageContent(body []byte) string {
	if r := gjson.GetBytes(body, "choices.0.message.content"); r.Type == gjson.String {
		return r.String()
	}
	// Anthropic messages API
	var parts []string
	gjson.GetBytes(body, "content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			parts = append(parts, block.Get("text").String())
		}
		return true
	})
	return strings.Join(parts, "")
}
