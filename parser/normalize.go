package parser

import (
	"regexp"
	"sort"
	"strings"
)

var (
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	resourceRe = regexp.MustCompile(`:/([a-fA-F0-9]+)`)
	bulletRe   = regexp.MustCompile(`^(\s*)[*+](\s+)`)
	hruleRe    = regexp.MustCompile(`^\s*\*(\s*\*){2,}\s*$`)
)

// normalizeLineEndings converts CRLF and lone CR to LF.
func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// fenceMarker returns the fence characters opening or closing a code block
// on this line, or "" when the line is not a fence.
func fenceMarker(line string) string {
	trimmed := strings.TrimLeft(line, " \t")
	switch {
	case strings.HasPrefix(trimmed, "```"):
		return "```"
	case strings.HasPrefix(trimmed, "~~~"):
		return "~~~"
	default:
		return ""
	}
}

// normalizeBody canonicalizes Markdown outside fenced code blocks: trailing
// whitespace is trimmed, * and + bullets become -, runs of three or more
// blank lines collapse to one, and leading and trailing blank lines are
// dropped. Fenced content is left byte for byte.
func normalizeBody(body string) string {
	lines := strings.Split(normalizeLineEndings(body), "\n")
	out := make([]string, 0, len(lines))

	var fence string
	blanks := 0
	flushBlanks := func() {
		n := blanks
		if n >= 3 {
			n = 1
		}
		for i := 0; i < n; i++ {
			out = append(out, "")
		}
		blanks = 0
	}

	for _, line := range lines {
		if fence != "" {
			out = append(out, line)
			if fenceMarker(line) == fence {
				fence = ""
			}
			continue
		}

		line = strings.TrimRight(line, " \t")
		if line == "" {
			blanks++
			continue
		}
		flushBlanks()

		if m := fenceMarker(line); m != "" {
			fence = m
			out = append(out, line)
			continue
		}
		if !hruleRe.MatchString(line) {
			line = bulletRe.ReplaceAllString(line, "${1}-${2}")
		}
		out = append(out, line)
	}

	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" && fence == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

// outsideFences returns the lines of body that are not inside fenced code.
func outsideFences(body string) []string {
	var out []string
	var fence string
	for _, line := range strings.Split(body, "\n") {
		if fence != "" {
			if fenceMarker(line) == fence {
				fence = ""
			}
			continue
		}
		if m := fenceMarker(line); m != "" {
			fence = m
			continue
		}
		out = append(out, line)
	}
	return out
}

// inlineTags extracts #tag occurrences outside code fences.
func inlineTags(body string) []string {
	var tags []string
	for _, line := range outsideFences(body) {
		for _, m := range tagRe.FindAllStringSubmatch(line, -1) {
			tags = append(tags, m[1])
		}
	}
	return tags
}

// tagSet trims, de-duplicates and sorts tags.
func tagSet(groups ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, g := range groups {
		for _, t := range g {
			t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#"))
			if t == "" {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// resourceIDs returns the Joplin resource ids referenced as :/<hex>,
// in order of first appearance.
func resourceIDs(body string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range resourceRe.FindAllStringSubmatch(body, -1) {
		id := strings.ToLower(m[1])
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// headingTitle returns the text of the first level-one heading outside
// code fences.
func headingTitle(body string) string {
	for _, line := range outsideFences(body) {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
