// Package markdown rewrites free-form tracker text so it round-trips
// safely through GitLab's markdown renderer: stack traces are fenced,
// bare XML-ish tags are quoted, and bug/task references are linkified.
// All functions are pure and never block.
package markdown

import (
	"regexp"
	"strings"
)

// Frame-header and banner signatures for GDB output. Derived from the
// regexes in Parse::StackTrace. Could be extended to cover Python
// tracebacks with patterns from the same library.
var frameHeaderPattern = regexp.MustCompile(
	`(?m)^#\d+\s+(?:0x[A-Fa-f0-9]{4,}\s+in\b|[A-Za-z_*]\S+\s+\(|<signal\shandler\scalled>)`)

var specialLinePatterns = []*regexp.Regexp{
	frameHeaderPattern,
	regexp.MustCompile(`^\(gdb\) `),
	regexp.MustCompile(`^Thread \d+ \(.*\):$`),
	regexp.MustCompile(`^\[Switching to Thread .+ \(.+\)\]$`),
	regexp.MustCompile(`^Program received signal SIG[A-Z]+,`),
	regexp.MustCompile(`^Breakpoint \d, [A-Za-z_*]\S+\s+\(`),
}

// Literal boilerplate lines GDB emits inside a trace.
var ignoreLines = map[string]bool{
	"No symbol table info available.": true,
	"No locals.":                      true,
	"---Type <return> to continue, or q <return> to quit---": true,
}

var lineBreakPattern = regexp.MustCompile(`\r?\n`)

func isSpecialLine(line string) bool {
	if ignoreLines[line] {
		return true
	}
	for _, p := range specialLinePatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// QuoteStackTraces surrounds debugger backtraces found in text with
// triple backticks so Markdown rendering does not mangle their layout.
// Text with no frame-header signature is returned unchanged, and the
// transform is idempotent: fenced output contains no unquoted signature
// region for a second pass to find.
func QuoteStackTraces(text string) string {
	if !frameHeaderPattern.MatchString(text) {
		return text
	}
	return strings.Join(quoteTraceRegion(lineBreakPattern.Split(text, -1)), "\n")
}

// quoteTraceRegion fences the first backtrace region in lines, then
// recurses on the remainder to handle bodies with several traces.
//
// A region starts at the first special line. Special lines and blank
// lines continue it; the region ends at the first non-special,
// non-blank line that follows at least one blank line. A single blank
// line alone never ends a region, since blank lines occur naturally
// inside one trace. A trace that is split in two by a blank line in a
// watchpoint dump ends up as two fenced regions; known imprecision.
func quoteTraceRegion(lines []string) []string {
	start, end := -1, -1
	inTrace := false
	possibleEnd := false
	ended := false

	for i, l := range lines {
		if !inTrace {
			if isSpecialLine(l) {
				start = i
				inTrace = true
				possibleEnd = false
			}
			continue
		}
		if isSpecialLine(l) {
			possibleEnd = false
			continue
		}
		if strings.TrimSpace(l) == "" {
			possibleEnd = true
			continue
		}
		if possibleEnd {
			end = i - 1
			ended = true
			break
		}
	}

	if !ended {
		if !inTrace {
			return lines
		}
		// Trace ran to end-of-text.
		end = len(lines)
	}

	quoted := make([]string, 0, len(lines)+2)
	quoted = append(quoted, lines[:start]...)
	quoted = append(quoted, "```")
	quoted = append(quoted, lines[start:end]...)
	quoted = append(quoted, "```")
	quoted = append(quoted, lines[end:]...)

	// The closing fence sits at end+1 after both insertions; resume the
	// scan past it and the separator line that triggered the end check.
	rest := end + 3
	if rest < len(quoted) {
		tail := quoteTraceRegion(quoted[rest:])
		quoted = append(quoted[:rest], tail...)
	}
	return quoted
}
