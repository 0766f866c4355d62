package ux

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
)

// Output is where handlers report to the user.
type Output interface {
	Output(text string)
	Bold(text string)
	Warning(text string)
	Error(text string)
	Quote(text string)
	Markdown(text string)
}

// Console writes styled output to a terminal.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	styles Styles
	md     *glamour.TermRenderer
}

// NewConsole creates a console writing to w.
func NewConsole(w io.Writer, styles Styles) *Console {
	return &Console{w: w, styles: styles}
}

func (c *Console) Output(text string)  { c.print(c.styles.Output.Render(text)) }
func (c *Console) Bold(text string)    { c.print(c.styles.Bold.Render(text)) }
func (c *Console) Warning(text string) { c.print(c.styles.Warning.Render(text)) }
func (c *Console) Error(text string)   { c.print(c.styles.Error.Render(text)) }
func (c *Console) Quote(text string)   { c.print(c.styles.Quote.Render(strings.TrimRight(text, "\n"))) }

// Markdown renders text through glamour once EnableMarkdown has been
// called, and prints it like Quote otherwise.
func (c *Console) Markdown(text string) {
	text = strings.TrimRight(text, "\n")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.md != nil {
		if out, err := c.md.Render(text); err == nil {
			fmt.Fprintln(c.w, strings.TrimRight(out, "\n"))
			return
		}
	}
	fmt.Fprintln(c.w, c.styles.Quote.Render(text))
}

// EnableMarkdown turns on Markdown rendering with the named glamour style.
// An empty style picks dark or light from the terminal, or no styling when
// stdout is not a terminal.
func (c *Console) EnableMarkdown(style string) error {
	if style == "" {
		style = styles.AutoStyle
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.md = r
	c.mu.Unlock()
	return nil
}

// Writer returns the underlying writer.
func (c *Console) Writer() io.Writer {
	return c.w
}

// Styles returns the console's styles.
func (c *Console) Styles() Styles {
	return c.styles
}

func (c *Console) print(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, s)
}

// Line is one recorded output entry.
type Line struct {
	Kind string // output, bold, warning, error, quote, markdown
	Text string
}

// Recorder is an Output that keeps everything in memory.
type Recorder struct {
	mu    sync.Mutex
	lines []Line
}

func (r *Recorder) Output(text string)   { r.add("output", text) }
func (r *Recorder) Bold(text string)     { r.add("bold", text) }
func (r *Recorder) Warning(text string)  { r.add("warning", text) }
func (r *Recorder) Error(text string)    { r.add("error", text) }
func (r *Recorder) Quote(text string)    { r.add("quote", text) }
func (r *Recorder) Markdown(text string) { r.add("markdown", text) }

func (r *Recorder) add(kind, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, Line{Kind: kind, Text: text})
}

// Lines returns a copy of everything recorded.
func (r *Recorder) Lines() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Line(nil), r.lines...)
}

// Texts returns the text of every recorded line of the given kind.
func (r *Recorder) Texts(kind string) []string {
	var out []string
	for _, l := range r.Lines() {
		if l.Kind == kind {
			out = append(out, l.Text)
		}
	}
	return out
}

// Discard is an Output that drops everything.
var Discard Output = discard{}

type discard struct{}

func (discard) Output(string)   {}
func (discard) Bold(string)     {}
func (discard) Warning(string)  {}
func (discard) Error(string)    {}
func (discard) Quote(string)    {}
func (discard) Markdown(string) {}
