package telegram

import (
	"strings"
	"testing"
)

func TestSplitHTMLShortText(t *testing.T) {
	chunks := splitHTML("short message", 100)
	if len(chunks) != 1 || chunks[0] != "short message" {
		t.Errorf("got %v", chunks)
	}
}

func TestSplitHTMLPrefersNewlines(t *testing.T) {
	text := strings.Repeat("line of gossip\n", 20)
	chunks := splitHTML(text, 100)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 100 {
			t.Errorf("chunk %d length %d exceeds limit", i, len(chunk))
		}
	}
	// Breaking at newlines keeps lines whole.
	if strings.Contains(chunks[0], "gossipline") {
		t.Error("chunk split mid-line")
	}
}

func TestSplitHTMLHardCutWithoutNewlines(t *testing.T) {
	text := strings.Repeat("a", 250)
	chunks := splitHTML(text, 100)

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if len(chunks[0]) != 100 || len(chunks[1]) != 100 || len(chunks[2]) != 50 {
		t.Errorf("chunk sizes %d/%d/%d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}
