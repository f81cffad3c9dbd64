package migrate

import (
	"strings"
	"unicode"

	"github.com/gnome-infra/bztogl/internal/tracker"
)

// NeedInfoLabel marks bugs waiting on their reporter.
const NeedInfoLabel = "2. Needs Information"

// keywordMap translates Bugzilla keywords to GitLab labels.
var keywordMap = map[string]string{
	"accessibility": "8. Accessibility",
	"newcomers":     "4. Newcomers",
	"security":      "1. Security",
}

// componentMap translates well-known Bugzilla components to GitLab
// labels. Components not listed fall back to a titled "5. <Component>"
// label.
var componentMap = map[string]string{
	"Accessibility":             "8. Accessibility",
	"Backend: Broadway":         "Broadway",
	"Backend: Quartz":           "MacOS",
	"Backend: X11":              "X11",
	"Backend: Wayland":          "Wayland",
	"Backend: Win32":            "Windows",
	"Documentation":             "8. Developer Docs",
	"Input Methods":             "Input",
	"Language Bindings":         "Introspection",
	"Themes":                    "Theme",
	"Widget: GtkComboBox":       "GtkComboBox",
	"Widget: GtkEntry":          "GtkEntry",
	"Widget: GtkFileChooser":    "5. FileChooser",
	"Widget: GtkFontChooser":    "GtkFontChooser",
	"Widget: GtkMenu":           "GtkMenu",
	"Widget: GtkNotebook":       "GtkNotebook",
	"Widget: GtkScrolledWindow": "GtkScrolledWindow",
	"Widget: GtkSpinButton":     "GtkSpinButton",
}

// phabKeywordMap translates Phabricator project names to GitLab labels.
var phabKeywordMap = map[string]string{
	"Pitivi tasks for newcomers": "4. Newcomers",
	"translations":               "8. Translation",
	"titles editor":              "title clips",
	"bundles":                    "binaries",
}

// phabStripTokens are product-name fragments trimmed off project labels.
var phabStripTokens = []string{"pitivi_", "pitivi", "ptv_", "ptv", "Pitivi"}

// BugLabels computes the label set for a migrated Bugzilla bug.
func BugLabels(bug tracker.SourceIssue, product string) []string {
	labels := []string{"bugzilla"}

	if bug.Status() == "NEEDINFO" {
		labels = append(labels, NeedInfoLabel)
	}

	component := bug.Component()
	lower := strings.ToLower(component)
	if component != "" && lower != "general" && lower != ".general" && lower != strings.ToLower(product) {
		if mapped, ok := componentMap[component]; ok {
			labels = append(labels, mapped)
		} else {
			labels = append(labels, "5. "+titleCase(component))
		}
	}

	for _, kw := range bug.Keywords() {
		if mapped, ok := keywordMap[kw]; ok {
			labels = append(labels, mapped)
		}
	}
	return labels
}

// TaskLabels computes the label set for a migrated Phabricator task.
// Project names other than the target project become labels, mapped
// through phabKeywordMap and stripped of product-name fragments.
func TaskLabels(projectNames []string, targetProject string) []string {
	labels := []string{"phabricator"}
	for _, name := range projectNames {
		if name == targetProject {
			continue
		}
		label := name
		if mapped, ok := phabKeywordMap[name]; ok {
			label = mapped
		}
		label = stripProductTokens(label)
		if label != "" {
			labels = append(labels, label)
		}
	}
	return labels
}

func stripProductTokens(label string) string {
	for {
		before := label
		label = strings.TrimSpace(label)
		for _, token := range phabStripTokens {
			label = strings.TrimPrefix(label, token)
			label = strings.TrimSuffix(label, token)
		}
		if label == before {
			return label
		}
	}
}

// titleCase uppercases the letter starting each word and lowercases
// the rest. A word starts after any non-letter, so hyphenated
// components come out as "Foo-Bar".
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToUpper(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
