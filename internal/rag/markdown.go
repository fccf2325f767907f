package rag

import (
	"regexp"
	"strings"
)

var (
	headlineRe       = regexp.MustCompile(`^#{1,6}\s`)
	imageRe          = regexp.MustCompile(`^!\[.*\]\(.*\)$`)
	standaloneLinkRe = regexp.MustCompile(`^\[.*\]\(.*\)$`)
	htmlCommentRe    = regexp.MustCompile(`^<!--.*-->$`)
	horizontalRuleRe = regexp.MustCompile(`^(-{3,}|\*{3,}|_{3,})$`)
	tableSeparatorRe = regexp.MustCompile(`^\|.*\|$`)
)

// ExtractMarkdownSections splits markdown content into plain-text sections
// suitable for the document store. Headlines delimit sections but are not
// stored themselves; blank lines also end the current section. Markup-only
// lines (images, standalone links, HTML comments, horizontal rules, code
// fence markers, table separators) are dropped.
func ExtractMarkdownSections(content string) []string {
	var sections []string
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(current, "\n"))
		if text != "" {
			sections = append(sections, text)
		}
		current = current[:0]
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			flush()
			continue
		}
		if headlineRe.MatchString(trimmed) {
			flush()
			continue
		}
		if isMarkupOnly(trimmed) {
			continue
		}
		current = append(current, line)
	}
	flush()

	return sections
}

func isMarkupOnly(line string) bool {
	if imageRe.MatchString(line) {
		return true
	}
	if standaloneLinkRe.MatchString(line) {
		return true
	}
	if htmlCommentRe.MatchString(line) {
		return true
	}
	if horizontalRuleRe.MatchString(line) {
		return true
	}
	if strings.HasPrefix(line, "```") {
		return true
	}
	if tableSeparatorRe.MatchString(line) && strings.Contains(line, "-") {
		return true
	}
	return false
}
