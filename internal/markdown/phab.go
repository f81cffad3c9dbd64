package markdown

import (
	"regexp"
	"strings"
)

var (
	doubledFencePattern = regexp.MustCompile("```\n```\n")
	fileRefPattern      = regexp.MustCompile(`\{F[0-9()]+\}`)
	bareIssueRefPattern = regexp.MustCompile(`(\W)#([0-9]+)`)
	taskOrDiffPattern   = regexp.MustCompile(`\b#?([TD][0-9]+)`)
	softBreakPattern    = regexp.MustCompile(`([^\n])\n`)
)

// FileMigrator uploads an embedded Phabricator file reference and
// returns replacement markdown. Returning ok=false leaves the original
// {Fnnn} marker in place; the caller is expected to have logged why.
type FileMigrator func(fileID string) (string, bool)

// EscapeTask rewrites Phabricator task/comment text into GitLab-safe
// markdown. phabURI is the Phabricator instance base used to linkify
// TNNN/DNNN references. migrate, when non-nil, is invoked for each
// embedded {Fnnn} file marker.
func EscapeTask(phabURI, text string, migrate FileMigrator) string {
	text = QuoteStackTraces(text)

	// A trace already fenced in the source comes out double quoted;
	// collapse the doubled fence back to one.
	text = doubledFencePattern.ReplaceAllString(text, "\n```\n")

	if migrate != nil {
		for _, marker := range fileRefPattern.FindAllString(text, -1) {
			fileID := strings.TrimSuffix(strings.TrimPrefix(marker, "{F"), "}")
			if replacement, ok := migrate(fileID); ok {
				text = strings.Replace(text, marker, replacement, 1)
			}
		}
	}

	// Prevent spurious links to other GitLab issues and comments.
	text = commentRefPattern.ReplaceAllString(text, "$1 $2")
	text = bareIssueRefPattern.ReplaceAllString(text, "$1# $2")

	// Link tasks and differentials back to Phabricator.
	text = taskOrDiffPattern.ReplaceAllString(text,
		"[$1]("+strings.TrimSuffix(phabURI, "/")+"/$1)")

	// Phabricator remarkup treats single newlines as hard breaks;
	// markdown needs trailing double spaces to do the same.
	text = softBreakPattern.ReplaceAllString(text, "$1  \n")

	return quoteTagsOutsideCode(text)
}
