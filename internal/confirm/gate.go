// Package confirm asks the user before a handler applies an effect.
// Subjects surfaced together are reviewed as one group; the user can approve
// the rest of a group at once or refuse a subject for the rest of the session.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"preflight/internal/logging"
)

// ErrCancelled is returned when the user aborts at a prompt.
var ErrCancelled = errors.New("cancelled by user")

// IsCancellation reports whether err should abort the whole turn.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// Answer is the user's reply to one prompt.
type Answer int

const (
	No Answer = iota
	Yes
	All   // yes to this and every remaining subject in the group
	Never // no, and never offer this subject again
)

func (a Answer) String() string {
	switch a {
	case Yes:
		return "yes"
	case All:
		return "all"
	case Never:
		return "never"
	default:
		return "no"
	}
}

// Subject is one thing awaiting consent.
type Subject struct {
	Key    string // identity used for the never-set
	Label  string // what the user sees
	Detail string // optional extra lines
}

// Group is every subject surfaced in one reflection round.
type Group struct {
	Question string
	Subjects []Subject
}

// Prompt is what an Asker shows for one subject.
type Prompt struct {
	Question string
	Subject  Subject
	Index    int // 1-based position among the subjects actually asked
	Total    int
}

// AllowAll reports whether "yes to all" makes sense for this prompt.
func (p Prompt) AllowAll() bool {
	return p.Total > 1
}

// Asker collects one answer from the user.
type Asker interface {
	Ask(ctx context.Context, p Prompt) (Answer, error)
}

// AskerFunc adapts a function to Asker.
type AskerFunc func(ctx context.Context, p Prompt) (Answer, error)

// Ask calls f.
func (f AskerFunc) Ask(ctx context.Context, p Prompt) (Answer, error) {
	return f(ctx, p)
}

// Decision is the outcome of reviewing a group.
type Decision struct {
	Approved   []Subject
	Declined   []Subject
	Suppressed []Subject // previously marked never; not asked
}

// Gate reviews groups through an Asker and remembers "never" answers.
// One Gate lives for the primary agent's session and is shared by every handler.
type Gate struct {
	mu    sync.Mutex
	asker Asker
	never map[string]bool
}

// NewGate creates a gate asking through asker.
func NewGate(asker Asker) *Gate {
	return &Gate{asker: asker, never: make(map[string]bool)}
}

// Refused reports whether key was answered "never" earlier in the session.
func (g *Gate) Refused(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.never[key]
}

// Review offers each subject of group in order. Duplicate keys are asked once.
// On error nothing is approved.
func (g *Gate) Review(ctx context.Context, group Group) (Decision, error) {
	var d Decision

	seen := make(map[string]bool, len(group.Subjects))
	pending := make([]Subject, 0, len(group.Subjects))
	for _, s := range group.Subjects {
		if seen[s.Key] {
			continue
		}
		seen[s.Key] = true
		if g.Refused(s.Key) {
			d.Suppressed = append(d.Suppressed, s)
			continue
		}
		pending = append(pending, s)
	}

	all := false
	for i, s := range pending {
		if all {
			d.Approved = append(d.Approved, s)
			continue
		}
		if err := ctx.Err(); err != nil {
			return Decision{}, err
		}

		answer, err := g.asker.Ask(ctx, Prompt{
			Question: group.Question,
			Subject:  s,
			Index:    i + 1,
			Total:    len(pending),
		})
		if err != nil {
			return Decision{}, fmt.Errorf("confirm %s: %w", s.Label, err)
		}
		logging.Get(logging.CategoryConfirm).Debug("%s %q: %s", group.Question, s.Label, answer)

		switch answer {
		case Yes:
			d.Approved = append(d.Approved, s)
		case All:
			all = true
			d.Approved = append(d.Approved, s)
		case Never:
			g.mu.Lock()
			g.never[s.Key] = true
			g.mu.Unlock()
			d.Declined = append(d.Declined, s)
		default:
			d.Declined = append(d.Declined, s)
		}
	}
	return d, nil
}
