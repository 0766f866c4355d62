package conversation

import (
	"fmt"
	"strings"

	"preflight/internal/types"
)

// Fence delimits quoted context. Start and End never occur inside the body
// they were chosen for.
type Fence struct {
	Start string
	End   string
}

// Format renders messages as plain text, one block per message.
func Format(msgs []types.Message) string {
	var sb strings.Builder
	for i, m := range msgs {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strings.ToUpper(string(m.Role)))
		if m.ToolCallID != "" {
			fmt.Fprintf(&sb, " (%s)", m.ToolCallID)
		}
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
		for _, tc := range m.ToolCalls {
			fmt.Fprintf(&sb, "TOOL CALL %s: %s %s\n", tc.ID, tc.Name, tc.ArgumentsJSON())
		}
	}
	return sb.String()
}

// Quote formats msgs inside a fence long enough that nothing in the body
// can close it early.
func Quote(msgs []types.Message) (string, Fence) {
	body := Format(msgs)
	fence := FenceFor(body, "context")
	return fence.Start + "\n" + body + fence.End, fence
}

// FenceFor picks a backtick fence longer than any backtick run in body.
func FenceFor(body, label string) Fence {
	ticks := strings.Repeat("`", longestRun(body, '`')+1)
	if len(ticks) < 3 {
		ticks = "```"
	}
	return Fence{Start: ticks + label, End: ticks}
}

func longestRun(s string, r byte) int {
	longest, current := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == r {
			current++
			if current > longest {
				longest = current
			}
			continue
		}
		current = 0
	}
	return longest
}
