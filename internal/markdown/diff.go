package markdown

import "strings"

// diffLinePrefixes are the characters a line may start with inside a
// Bugzilla splinter review block: file headers (::), hunk headers (@@),
// and diff context/added/removed lines.
const diffLinePrefixes = ":@+- "

// FormatReviewDiffs fences the diff paragraphs of a patch-review
// comment as ```diff blocks. A paragraph qualifies when its first two
// characters are "::" or "@@" and every one of its lines starts with
// one of ":@+- ". Paragraph boundaries and spacing are preserved.
func FormatReviewDiffs(text string) string {
	paragraphs := strings.Split(text, "\n\n")
	converted := make([]string, 0, len(paragraphs))

	for _, paragraph := range paragraphs {
		if !isDiffParagraph(paragraph) {
			converted = append(converted, paragraph)
			continue
		}
		converted = append(converted, "```diff\n"+paragraph+"\n```")
	}

	return strings.Join(converted, "\n\n")
}

func isDiffParagraph(paragraph string) bool {
	if len(paragraph) < 2 {
		return false
	}
	if head := paragraph[:2]; head != "::" && head != "@@" {
		return false
	}
	for _, line := range strings.Split(paragraph, "\n") {
		if line == "" || !strings.ContainsRune(diffLinePrefixes, rune(line[0])) {
			return false
		}
	}
	return true
}
