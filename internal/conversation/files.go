package conversation

import (
	"sort"
	"strings"

	"preflight/internal/types"
)

// fileHeader prefixes every message produced by FileMessage.
const fileHeader = "File added to the chat: "

// FileMessage wraps a file's content in a user message the primary agent can read.
func FileMessage(path, content string) types.Message {
	fence := FenceFor(content, "")
	var sb strings.Builder
	sb.WriteString(fileHeader)
	sb.WriteString(path)
	sb.WriteString("\n")
	sb.WriteString(fence.Start)
	sb.WriteString("\n")
	sb.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString(fence.End)
	return types.UserMessage(sb.String())
}

// Files returns the sorted paths of files already added to msgs.
func Files(msgs []types.Message) []string {
	seen := make(map[string]bool)
	for _, m := range msgs {
		if m.Role != types.RoleUser || !strings.HasPrefix(m.Content, fileHeader) {
			continue
		}
		line, _, _ := strings.Cut(strings.TrimPrefix(m.Content, fileHeader), "\n")
		if path := strings.TrimSpace(line); path != "" {
			seen[path] = true
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
