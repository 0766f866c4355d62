package confirm

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"preflight/internal/ux"
)

// scripted answers prompts from a fixed list and records what was asked.
type scripted struct {
	answers []Answer
	asked   []Prompt
}

func (s *scripted) Ask(ctx context.Context, p Prompt) (Answer, error) {
	s.asked = append(s.asked, p)
	if len(s.answers) == 0 {
		return No, errors.New("unexpected prompt for " + p.Subject.Label)
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

func subjects(keys ...string) []Subject {
	out := make([]Subject, 0, len(keys))
	for _, k := range keys {
		out = append(out, Subject{Key: k, Label: k})
	}
	return out
}

func keys(ss []Subject) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		out = append(out, s.Key)
	}
	return out
}

func TestReview_YesNo(t *testing.T) {
	asker := &scripted{answers: []Answer{Yes, No}}
	gate := NewGate(asker)

	d, err := gate.Review(context.Background(), Group{Question: "Add file?", Subjects: subjects("a", "b")})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys(d.Approved))
	assert.Equal(t, []string{"b"}, keys(d.Declined))
	require.Len(t, asker.asked, 2)
	assert.Equal(t, 2, asker.asked[1].Index)
	assert.Equal(t, 2, asker.asked[1].Total)
	assert.True(t, asker.asked[0].AllowAll())
}

func TestReview_AllApprovesRemainder(t *testing.T) {
	asker := &scripted{answers: []Answer{No, All}}
	gate := NewGate(asker)

	d, err := gate.Review(context.Background(), Group{Subjects: subjects("a", "b", "c", "d")})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, keys(d.Approved))
	assert.Equal(t, []string{"a"}, keys(d.Declined))
	assert.Len(t, asker.asked, 2, "subjects after All are not asked")
}

func TestReview_NeverIsRememberedAcrossGroups(t *testing.T) {
	asker := &scripted{answers: []Answer{Never, Yes}}
	gate := NewGate(asker)

	_, err := gate.Review(context.Background(), Group{Subjects: subjects("x")})
	require.NoError(t, err)
	assert.True(t, gate.Refused("x"))

	d, err := gate.Review(context.Background(), Group{Subjects: subjects("x", "y")})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, keys(d.Suppressed))
	assert.Equal(t, []string{"y"}, keys(d.Approved))
	require.Len(t, asker.asked, 2)
	assert.Equal(t, 1, asker.asked[1].Total, "suppressed subjects do not count")
	assert.False(t, asker.asked[1].AllowAll())
}

func TestReview_DuplicateKeysAskedOnce(t *testing.T) {
	asker := &scripted{answers: []Answer{Yes}}
	d, err := NewGate(asker).Review(context.Background(), Group{Subjects: subjects("a", "a")})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys(d.Approved))
}

func TestReview_ErrorApprovesNothing(t *testing.T) {
	asker := AskerFunc(func(ctx context.Context, p Prompt) (Answer, error) {
		if p.Index == 2 {
			return No, ErrCancelled
		}
		return Yes, nil
	})

	d, err := NewGate(asker).Review(context.Background(), Group{Subjects: subjects("a", "b")})
	require.Error(t, err)
	assert.True(t, IsCancellation(err))
	assert.Empty(t, d.Approved)
}

func TestReview_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewGate(&scripted{}).Review(ctx, Group{Subjects: subjects("a")})
	assert.True(t, IsCancellation(err))
}

func TestTerminalAsker(t *testing.T) {
	tests := []struct {
		name  string
		input string
		total int
		want  Answer
	}{
		{"enter means yes", "\r", 1, Yes},
		{"newline means yes", "\n", 1, Yes},
		{"no", "n\n", 1, No},
		{"dont ask again", "d\n", 1, Never},
		{"all in a batch", "a\n", 2, All},
		{"all rejected for single then no", "an\n", 1, No},
		{"garbage then yes", "xY\n", 1, Yes},
		{"first key wins", "nyyy\n", 1, No},
		{"no trailing newline", "n", 1, No},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			asker := NewTerminalAsker(strings.NewReader(tt.input), &out, ux.PlainStyles())
			got, err := asker.Ask(context.Background(), Prompt{
				Question: "Add file to the chat?",
				Subject:  Subject{Key: "f", Label: "src/a.go"},
				Index:    1,
				Total:    tt.total,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Add file to the chat? src/a.go")
		})
	}
}

func TestTerminalAsker_EOFCancels(t *testing.T) {
	var out bytes.Buffer
	asker := NewTerminalAsker(strings.NewReader(""), &out, ux.PlainStyles())
	_, err := asker.Ask(context.Background(), Prompt{Question: "Run tools?", Total: 2, Index: 1})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Contains(t, out.String(), "(A)ll")
}

func TestTerminalAsker_EscCancels(t *testing.T) {
	var out bytes.Buffer
	asker := NewTerminalAsker(strings.NewReader("\x1b"), &out, ux.PlainStyles())
	_, err := asker.Ask(context.Background(), Prompt{Question: "Run tools?"})
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestTerminalAsker_AnswersStayQueuedPerPrompt(t *testing.T) {
	var out bytes.Buffer
	asker := NewTerminalAsker(strings.NewReader("y\r\nn\n\n"), &out, ux.PlainStyles())

	var got []Answer
	for i := 1; i <= 3; i++ {
		a, err := asker.Ask(context.Background(), Prompt{Question: "Add file?", Index: i, Total: 3})
		require.NoError(t, err)
		got = append(got, a)
	}
	assert.Equal(t, []Answer{Yes, No, Yes}, got)
}

// syncBuffer guards the render output shared with the program goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func TestTerminalAsker_CancelledPromptLeavesInputForNext(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	asker := NewTerminalAsker(r, &syncBuffer{}, ux.PlainStyles())
	p := Prompt{Question: "Add file?", Subject: Subject{Key: "f", Label: "src/a.go"}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = asker.Ask(ctx, p)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte("n\n"))
	}()

	got, err := asker.Ask(ctx2, p)
	require.NoError(t, err)
	assert.Equal(t, No, got)
}

func TestAutoAsker(t *testing.T) {
	rec := &ux.Recorder{}
	got, err := AutoAsker{Out: rec}.Ask(context.Background(), Prompt{Question: "Run tools?", Subject: Subject{Label: "grep"}})
	require.NoError(t, err)
	assert.Equal(t, Yes, got)
	assert.Len(t, rec.Texts("output"), 1)
}
