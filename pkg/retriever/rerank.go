package retriever

import (
	"encoding/json"
	"fmt"
	"strings"
)

// rerankSelection is one entry of the structured re-ranking response.
// Index is 1-based against the candidate list shown to the model.
type rerankSelection struct {
	Index     int    `json:"index"`
	Relevance string `json:"relevance"`
}

// buildRerankPrompt asks the model to pick the n most relevant candidate
// passages and justify each pick, as a JSON array.
func buildRerankPrompt(query string, candidates []string, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are ranking text passages by relevance to a question.\n\nQuestion: %s\n\nPassages:\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, c)
	}
	fmt.Fprintf(&b, "Select the %d most relevant passages. Respond with ONLY a JSON array of objects, "+
		"each with an \"index\" field (the passage number) and a \"relevance\" field "+
		"(one sentence on why it is relevant). Example: [{\"index\": 2, \"relevance\": \"...\"}]", n)
	return b.String()
}

// parseRerank extracts the JSON array from a model response and keeps
// selections whose 1-based index is in range. Out-of-range indices are
// rejected rather than remapped; a response with no valid selection is
// reported as unparseable so the caller takes the lexical fallback.
func parseRerank(content string, numCandidates int) ([]rerankSelection, bool) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, false
	}

	var raw []rerankSelection
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, false
	}

	var valid []rerankSelection
	seen := make(map[int]bool)
	for _, sel := range raw {
		if sel.Index < 1 || sel.Index > numCandidates || seen[sel.Index] {
			continue
		}
		seen[sel.Index] = true
		valid = append(valid, sel)
	}
	if len(valid) == 0 {
		return nil, false
	}
	return valid, true
}
