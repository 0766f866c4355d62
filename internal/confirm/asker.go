package confirm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"unicode"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/term"

	"preflight/internal/ux"
)

// AutoAsker approves everything. It still echoes each prompt so the user
// can see what was applied.
type AutoAsker struct {
	Out ux.Output
}

// Ask answers Yes unless ctx is done.
func (a AutoAsker) Ask(ctx context.Context, p Prompt) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return No, err
	}
	if a.Out != nil {
		a.Out.Output(fmt.Sprintf("%s %s (Y)es/(N)o [Yes]: y", p.Question, p.Subject.Label))
	}
	return Yes, nil
}

// TerminalAsker runs a one-line bubbletea prompt per question.
//
// On a terminal the first valid key answers. Any other input is consumed a
// byte at a time and the prompt ends at the end of the line, so answers
// still queued in a pipe belong to the prompts that follow.
type TerminalAsker struct {
	in     io.Reader
	out    io.Writer
	styles ux.Styles
	tty    bool
	lastCR atomic.Bool
}

// NewTerminalAsker reads keys from in and renders prompts to out.
func NewTerminalAsker(in io.Reader, out io.Writer, styles ux.Styles) *TerminalAsker {
	t := &TerminalAsker{in: in, out: out, styles: styles}
	if f, ok := in.(*os.File); ok {
		t.tty = term.IsTerminal(f.Fd())
	}
	return t
}

// inputClosedMsg reports EOF on the input.
type inputClosedMsg struct{}

// Ask prompts until it gets a valid answer. Enter means Yes. EOF, ctrl+c,
// ctrl+d and esc return ErrCancelled; a cancelled ctx returns ctx.Err().
func (t *TerminalAsker) Ask(ctx context.Context, p Prompt) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return No, err
	}

	var prog *tea.Program
	keys := &keyReader{
		r:      t.in,
		line:   !t.tty,
		lastCR: &t.lastCR,
		onEOF:  func() { go prog.Send(inputClosedMsg{}) },
	}

	var input io.Reader = keys
	if f, ok := t.in.(*os.File); ok {
		input = fileKeyReader{File: f, keys: keys}
	}

	model := askModel{
		prompt:    promptText(p),
		allowAll:  p.AllowAll(),
		immediate: t.tty,
		styles:    t.styles,
	}
	prog = tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(input),
		tea.WithOutput(t.out),
		tea.WithoutSignalHandler(),
	)

	final, err := prog.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return No, ctxErr
	}
	if err != nil {
		return No, fmt.Errorf("prompt: %w", err)
	}

	m, ok := final.(askModel)
	if !ok || m.cancelled || !m.answered {
		return No, ErrCancelled
	}
	return m.answer, nil
}

type askModel struct {
	prompt    string
	allowAll  bool
	immediate bool
	styles    ux.Styles

	answer    Answer
	answered  bool
	done      bool
	cancelled bool
	invalid   bool
}

func (m askModel) Init() tea.Cmd { return nil }

func (m askModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.done {
		return m, nil
	}

	switch msg := msg.(type) {
	case inputClosedMsg:
		m.cancelled = !m.answered
		return m.finish()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d", "esc":
			m.cancelled = true
			return m.finish()
		case "enter", "ctrl+j":
			if !m.answered {
				m.answer, m.answered = Yes, true
			}
			return m.finish()
		}

		if m.answered {
			return m, nil
		}
		if msg.Type == tea.KeyRunes {
			for _, r := range msg.Runes {
				if a, ok := parseKey(r, m.allowAll); ok {
					m.answer, m.answered = a, true
					break
				}
			}
		}
		m.invalid = !m.answered
		if m.answered && m.immediate {
			return m.finish()
		}
	}
	return m, nil
}

func (m askModel) finish() (tea.Model, tea.Cmd) {
	m.done = true
	m.invalid = false
	return m, tea.Quit
}

func (m askModel) View() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Prompt.Render(m.prompt))
	sb.WriteString(" ")
	if m.answered {
		sb.WriteString(m.answer.String())
	}
	if m.invalid {
		sb.WriteString("\n")
		sb.WriteString(m.styles.Warning.Render("Please answer with one of: " + choices(m.allowAll)))
	}
	sb.WriteString("\n")
	return sb.String()
}

// keyReader is the program input. In line mode it hands out one byte per
// read and reports EOF once a line terminator has been delivered, leaving
// the rest of the stream untouched. A CRLF pair counts as one terminator.
type keyReader struct {
	r      io.Reader
	line   bool
	lastCR *atomic.Bool
	ended  bool
	onEOF  func()
}

func (k *keyReader) Read(p []byte) (int, error) {
	if k.ended {
		return 0, io.EOF
	}
	if !k.line {
		n, err := k.r.Read(p)
		if errors.Is(err, io.EOF) {
			k.onEOF()
		}
		return n, err
	}

	for len(p) > 0 {
		n, err := k.r.Read(p[:1])
		if n == 1 {
			b := p[0]
			if b == '\n' && k.lastCR.Swap(false) {
				continue
			}
			k.lastCR.Store(b == '\r')
			k.ended = b == '\n' || b == '\r'
			return 1, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				k.onEOF()
			}
			return 0, err
		}
	}
	return 0, nil
}

// fileKeyReader keeps the *os.File surface visible so the program can put
// a terminal in raw mode and cancel blocked reads.
type fileKeyReader struct {
	*os.File
	keys *keyReader
}

func (f fileKeyReader) Read(p []byte) (int, error) { return f.keys.Read(p) }

func promptText(p Prompt) string {
	var sb strings.Builder
	sb.WriteString(p.Question)
	if p.Subject.Label != "" {
		sb.WriteString(" ")
		sb.WriteString(p.Subject.Label)
	}
	if p.Total > 1 {
		fmt.Fprintf(&sb, " [%d/%d]", p.Index, p.Total)
	}
	sb.WriteString(" ")
	sb.WriteString(choices(p.AllowAll()))
	sb.WriteString(" [Yes]:")
	return sb.String()
}

func choices(allowAll bool) string {
	if allowAll {
		return "(Y)es/(N)o/(A)ll/(D)on't ask again"
	}
	return "(Y)es/(N)o/(D)on't ask again"
}

func parseKey(r rune, allowAll bool) (Answer, bool) {
	switch unicode.ToLower(r) {
	case 'y':
		return Yes, true
	case 'n':
		return No, true
	case 'd':
		return Never, true
	case 'a':
		if allowAll {
			return All, true
		}
	}
	return No, false
}
