package speech

import (
	"strings"
	"unicode/utf8"
)

// Chunk splits text into pieces of at most budget runes for synthesis.
//
// Text that already fits is returned as a single chunk. Longer text is
// packed greedily word by word; words are never split, so a single word
// longer than budget becomes a chunk of its own. Empty or whitespace-only
// text yields no chunks. A budget of zero or less disables splitting.
func Chunk(text string, budget int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if budget <= 0 || utf8.RuneCountInString(text) <= budget {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	for _, w := range strings.Fields(text) {
		wl := utf8.RuneCountInString(w)
		if curLen > 0 && curLen+1+wl > budget {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(w)
		curLen += wl
	}
	if curLen > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
