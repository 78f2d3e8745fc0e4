package speech

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunk(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		budget int
		want   []string
	}{
		{"empty", "", 10, nil},
		{"whitespace", "  \n\t ", 10, nil},
		{"fits", "hola mundo", 10, []string{"hola mundo"}},
		{"trimmed", "  hola  ", 10, []string{"hola"}},
		{"split on words", "uno dos tres cuatro", 8, []string{"uno dos", "tres", "cuatro"}},
		{"oversized word alone", "a supercalifragilistic b", 5, []string{"a", "supercalifragilistic", "b"}},
		{"runes not bytes", "ñandú ñandú", 11, []string{"ñandú ñandú"}},
		{"no budget", "uno dos tres", 0, []string{"uno dos tres"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Chunk(tt.text, tt.budget)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("Chunk(%q, %d) = %q, want %q", tt.text, tt.budget, got, tt.want)
			}
		})
	}
}

func TestChunk_OversizedWordKeptWhole(t *testing.T) {
	long := strings.Repeat("a", 30)
	got := Chunk("hola "+long+" mundo", 10)

	want := []int{4, 30, 5}
	if len(got) != len(want) {
		t.Fatalf("Chunk = %q, want %d chunks", got, len(want))
	}
	for i, c := range got {
		if n := utf8.RuneCountInString(c); n != want[i] {
			t.Errorf("chunk %d = %q (%d runes), want %d runes", i, c, n, want[i])
		}
	}
	if got[1] != long {
		t.Errorf("oversized word was altered: %q", got[1])
	}
}

func TestChunk_Properties(t *testing.T) {
	text := strings.Repeat("El colibrí visita flores del bosque nuboso cada mañana temprano. ", 60)
	words := strings.Fields(text)

	for _, budget := range []int{20, 64, 150, 700} {
		chunks := Chunk(text, budget)
		for i, c := range chunks {
			if c == "" {
				t.Fatalf("budget %d: chunk %d is empty", budget, i)
			}
			if n := utf8.RuneCountInString(c); n > budget {
				t.Errorf("budget %d: chunk %d has %d runes", budget, i, n)
			}
		}
		if got := strings.Fields(strings.Join(chunks, " ")); strings.Join(got, " ") != strings.Join(words, " ") {
			t.Errorf("budget %d: word sequence not preserved", budget)
		}
	}
}

func TestChunk_LongAnswerFourChunks(t *testing.T) {
	// 250 nine-letter words joined by spaces: 2,499 characters.
	text := strings.TrimSpace(strings.Repeat("mariposas ", 250))
	if len(text) < 2490 || len(text) > 2500 {
		t.Fatalf("fixture length = %d", len(text))
	}

	chunks := Chunk(text, 700)
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 700 {
			t.Errorf("chunk %d has %d chars", i, len(c))
		}
		for _, w := range strings.Fields(c) {
			if w != "mariposas" {
				t.Errorf("chunk %d contains split word %q", i, w)
			}
		}
	}
}
