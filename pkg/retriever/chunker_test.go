package retriever

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitChunksMergesShortParagraphs(t *testing.T) {
	text := "Invest early.\n\nDiversify widely.\n\nStay patient."

	chunks := SplitChunks(text, 500)
	if len(chunks) != 1 {
		t.Fatalf("expected 3 short paragraphs merged into 1 chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0], "Invest early.") || !strings.Contains(chunks[0], "Stay patient.") {
		t.Errorf("merged chunk missing paragraphs: %q", chunks[0])
	}
}

func TestSplitChunksRespectsBound(t *testing.T) {
	paras := []string{
		"Value investing rewards patience and discipline over market timing.",
		"Compound interest is the eighth wonder of the world for savers.",
		"Risk comes from not knowing what you are doing in the market.",
		"Price is what you pay and value is what you get from an asset.",
	}
	text := strings.Join(paras, "\n\n")

	for _, maxLen := range []int{40, 80, 150, 500} {
		chunks := SplitChunks(text, maxLen)
		if len(chunks) == 0 {
			t.Fatalf("maxLen %d: no chunks", maxLen)
		}
		for i, c := range chunks {
			if c == "" {
				t.Errorf("maxLen %d: chunk %d is empty", maxLen, i)
			}
			if utf8.RuneCountInString(c) > maxLen {
				t.Errorf("maxLen %d: chunk %d has %d chars", maxLen, i, utf8.RuneCountInString(c))
			}
		}
	}
}

func TestSplitChunksDeterministicAndOrdered(t *testing.T) {
	text := "First paragraph about stocks.\n\nSecond paragraph about bonds.\n\nThird paragraph about gold."

	a := SplitChunks(text, 35)
	b := SplitChunks(text, 35)
	if len(a) != len(b) {
		t.Fatalf("nondeterministic chunk count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}

	// Source order must be preserved.
	joined := strings.Join(a, "\n")
	first := strings.Index(joined, "First")
	second := strings.Index(joined, "Second")
	third := strings.Index(joined, "Third")
	if !(first < second && second < third) {
		t.Errorf("chunks out of source order: %v", a)
	}
}

func TestSplitChunksLongParagraphSentenceSplit(t *testing.T) {
	para := "The market fluctuates daily. Smart investors ignore the noise. They focus on fundamentals instead. Patience compounds returns over decades."

	chunks := SplitChunks(para, 60)
	if len(chunks) < 2 {
		t.Fatalf("expected the long paragraph split into multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if utf8.RuneCountInString(c) > 60 {
			t.Errorf("chunk exceeds bound: %q", c)
		}
	}
	if !strings.HasSuffix(chunks[0], ".") {
		t.Errorf("sentence split should keep the period: %q", chunks[0])
	}
}

func TestSplitChunksOversizedSentence(t *testing.T) {
	sent := strings.Repeat("x", 120)

	chunks := SplitChunks(sent, 50)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 hard-split pieces, got %d", len(chunks))
	}
	for _, c := range chunks {
		if utf8.RuneCountInString(c) > 50 {
			t.Errorf("hard-split piece exceeds bound: %d chars", utf8.RuneCountInString(c))
		}
	}
}

func TestSplitChunksEmptyInput(t *testing.T) {
	for _, text := range []string{"", "\n\n", "   \n\n  \n\n"} {
		if chunks := SplitChunks(text, 100); len(chunks) != 0 {
			t.Errorf("expected no chunks for %q, got %v", text, chunks)
		}
	}
}
