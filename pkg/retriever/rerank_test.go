package retriever

import (
	"strings"
	"testing"
)

func TestBuildRerankPrompt(t *testing.T) {
	prompt := buildRerankPrompt("what is diversification", []string{"alpha", "beta"}, 2)

	if !strings.Contains(prompt, "what is diversification") {
		t.Error("prompt missing query")
	}
	if !strings.Contains(prompt, "[1] alpha") || !strings.Contains(prompt, "[2] beta") {
		t.Error("prompt missing 1-based candidate listing")
	}
}

func TestParseRerank(t *testing.T) {
	content := `Here are the best passages:
[{"index": 2, "relevance": "defines the concept"}, {"index": 1, "relevance": "gives an example"}]`

	sels, ok := parseRerank(content, 3)
	if !ok {
		t.Fatal("expected parseable response")
	}
	if len(sels) != 2 {
		t.Fatalf("expected 2 selections, got %d", len(sels))
	}
	if sels[0].Index != 2 || sels[0].Relevance != "defines the concept" {
		t.Errorf("unexpected first selection: %+v", sels[0])
	}
}

func TestParseRerankRejectsOutOfRange(t *testing.T) {
	content := `[{"index": 0, "relevance": "a"}, {"index": 4, "relevance": "b"}, {"index": 3, "relevance": "c"}]`

	sels, ok := parseRerank(content, 3)
	if !ok {
		t.Fatal("expected parseable response")
	}
	if len(sels) != 1 || sels[0].Index != 3 {
		t.Errorf("expected only in-range index 3 kept, got %+v", sels)
	}
}

func TestParseRerankRejectsDuplicates(t *testing.T) {
	content := `[{"index": 1, "relevance": "a"}, {"index": 1, "relevance": "b"}]`

	sels, ok := parseRerank(content, 3)
	if !ok {
		t.Fatal("expected parseable response")
	}
	if len(sels) != 1 {
		t.Errorf("expected duplicate index dropped, got %+v", sels)
	}
}

func TestParseRerankUnparseable(t *testing.T) {
	cases := []string{
		"I think passage two is the most relevant one.",
		"[not json at all}",
		`[{"index": 9, "relevance": "all out of range"}]`,
		"",
	}
	for _, content := range cases {
		if _, ok := parseRerank(content, 3); ok {
			t.Errorf("expected unparseable for %q", content)
		}
	}
}
