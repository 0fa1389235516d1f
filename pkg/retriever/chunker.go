package retriever

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var paragraphSep = regexp.MustCompile(`\n[ \t]*\n+`)

// SplitChunks splits text into chunks of at most maxLen characters.
// Consecutive short paragraphs are merged into one chunk; paragraphs
// longer than the bound are split at sentence boundaries, and a single
// oversized sentence is hard-split. Chunks preserve source order and
// are never empty.
func SplitChunks(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = 500
	}

	var chunks []string
	var cur string
	flush := func() {
		if cur != "" {
			chunks = append(chunks, cur)
			cur = ""
		}
	}

	for _, para := range paragraphSep.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if utf8.RuneCountInString(para) > maxLen {
			flush()
			chunks = append(chunks, splitLongParagraph(para, maxLen)...)
			continue
		}

		switch {
		case cur == "":
			cur = para
		case utf8.RuneCountInString(cur)+2+utf8.RuneCountInString(para) <= maxLen:
			cur += "\n\n" + para
		default:
			flush()
			cur = para
		}
	}
	flush()

	return chunks
}

// splitLongParagraph packs sentences greedily into chunks of at most
// maxLen characters, hard-splitting any sentence that alone exceeds it.
func splitLongParagraph(para string, maxLen int) []string {
	var chunks []string
	var cur string
	flush := func() {
		if cur != "" {
			chunks = append(chunks, cur)
			cur = ""
		}
	}

	for _, sent := range splitSentences(para) {
		if utf8.RuneCountInString(sent) > maxLen {
			flush()
			chunks = append(chunks, hardSplit(sent, maxLen)...)
			continue
		}
		switch {
		case cur == "":
			cur = sent
		case utf8.RuneCountInString(cur)+1+utf8.RuneCountInString(sent) <= maxLen:
			cur += " " + sent
		default:
			flush()
			cur = sent
		}
	}
	flush()

	return chunks
}

// splitSentences splits on ". " boundaries, keeping the period with the
// preceding sentence.
func splitSentences(s string) []string {
	var out []string
	for {
		i := strings.Index(s, ". ")
		if i < 0 {
			break
		}
		sent := strings.TrimSpace(s[:i+1])
		if sent != "" {
			out = append(out, sent)
		}
		s = s[i+2:]
	}
	if rest := strings.TrimSpace(s); rest != "" {
		out = append(out, rest)
	}
	return out
}

// hardSplit cuts s into maxLen-rune pieces.
func hardSplit(s string, maxLen int) []string {
	var out []string
	runes := []rune(s)
	for len(runes) > 0 {
		n := maxLen
		if n > len(runes) {
			n = len(runes)
		}
		piece := strings.TrimSpace(string(runes[:n]))
		if piece != "" {
			out = append(out, piece)
		}
		runes = runes[n:]
	}
	return out
}
