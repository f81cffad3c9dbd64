package markdown

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	bugRefPattern     = regexp.MustCompile(`([Bb]ug) ([0-9]+)`)
	commentRefPattern = regexp.MustCompile(`([Cc]omment) #([0-9]+)`)

	// Matches an XML-like tag preceded only by balanced code spans.
	// Group 1 skips over matched pairs of single backticks and matched
	// pairs of triple-backtick fence lines; a tag inside either is never
	// reached. Matches can overlap, so callers substitute to fixed point.
	tagOutsideCodePattern = regexp.MustCompile(
		"(^[^`]*(?:(?:\n```.*?\n```|`[^`]+`)[^`]*?)*?)(</?[a-zA-Z0-9_=\"' -]*?>)")
)

// maxQuoteTagPasses bounds the tag-quoting fixed-point loop. Each pass
// quotes at least one tag or terminates, so the cap is only a guard
// against pathological input.
const maxQuoteTagPasses = 1000

// BugURL returns the canonical bug-view URL for a bug id on the given
// Bugzilla instance.
func BugURL(baseURL string, bugID int) string {
	return fmt.Sprintf("%s/show_bug.cgi?id=%d", strings.TrimSuffix(baseURL, "/"), bugID)
}

// Autolink rewrites raw Bugzilla comment text into GitLab-safe markdown:
//
//  1. "Bug 1234" becomes a link to the bug on baseURL, preserving the
//     case of the word in the link text.
//  2. "Comment #3" loses its "#" so GitLab does not read it as a
//     reference to one of its own issues.
//  3. Stack traces are fenced (QuoteStackTraces).
//  4. Bare XML-like tags outside code spans are wrapped in single
//     backticks so GitLab does not strip them.
//
// Not idempotent with respect to step 1 (the link text still matches
// the bug pattern), so callers must apply it exactly once.
func Autolink(baseURL, text string) string {
	linkBase := strings.TrimSuffix(baseURL, "/")
	text = bugRefPattern.ReplaceAllString(text,
		"[$1 $2]("+linkBase+"/show_bug.cgi?id=$2)")
	text = commentRefPattern.ReplaceAllString(text, "$1 $2")
	text = QuoteStackTraces(text)
	return quoteTagsOutsideCode(text)
}

// quoteTagsOutsideCode wraps each bare XML-ish tag in single backticks.
// Quoting one tag changes the code-span boundaries seen by its
// neighbors, so substitution repeats until a pass changes nothing.
func quoteTagsOutsideCode(text string) string {
	for i := 0; i < maxQuoteTagPasses; i++ {
		replaced := tagOutsideCodePattern.ReplaceAllString(text, "$1`$2`")
		if replaced == text {
			break
		}
		text = replaced
	}
	return text
}
