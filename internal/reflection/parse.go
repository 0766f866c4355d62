package reflection

import (
	"path"
	"strings"
)

// Sentinel is the reply that tells a session no further work is needed.
const Sentinel = "CONTINUE"

// HasSentinel reports whether any line of text is the CONTINUE sentinel,
// ignoring case, surrounding whitespace and backticks.
func HasSentinel(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.EqualFold(cleanLine(line), Sentinel) {
			return true
		}
	}
	return false
}

// ParseFileMentions returns the file paths listed in a reply, one per line,
// in order and without duplicates. List markers, quotes and backticks are
// stripped; the sentinel, fence lines and lines containing spaces are skipped.
func ParseFileMentions(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		p := cleanLine(stripListMarker(strings.TrimSpace(line)))
		if p == "" || strings.EqualFold(p, Sentinel) || strings.ContainsAny(p, " \t") {
			continue
		}
		p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
		p = strings.TrimPrefix(p, "./")
		if p == "." || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func cleanLine(line string) string {
	return strings.Trim(strings.TrimSpace(line), "`'\"")
}

func stripListMarker(line string) string {
	for _, m := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(line, m) {
			return strings.TrimSpace(line[len(m):])
		}
	}
	// numbered: "1. " or "1) "
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i+1 < len(line) && (line[i] == '.' || line[i] == ')') && line[i+1] == ' ' {
		return strings.TrimSpace(line[i+2:])
	}
	return line
}
