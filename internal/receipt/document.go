// Package receipt lays out receipts as a sequence of drawing commands and
// defines the renderer that turns a finished layout into PDF bytes.
package receipt

import (
	"context"
	"errors"
	"sync"
)

// ErrDocumentClosed is returned when content is added after Close.
var ErrDocumentClosed = errors.New("receipt: document is closed")

// Font sizes in points.
const (
	DefaultFontSize = 12
	TitleFontSize   = 16
)

// Align is a horizontal text alignment.
type Align string

const (
	Left   Align = "left"
	Center Align = "center"
	Right  Align = "right"
)

// Line is one drawing command.
type Line struct {
	Text      string
	Align     Align
	Underline bool
	FontSize  int
	Blank     bool
}

// Option modifies a text line.
type Option func(*Line)

// AlignCenter centers the line.
func AlignCenter() Option { return func(l *Line) { l.Align = Center } }

// AlignRight aligns the line to the right margin.
func AlignRight() Option { return func(l *Line) { l.Align = Right } }

// Underline underlines the line.
func Underline() Option { return func(l *Line) { l.Underline = true } }

// FontSize sets the line's font size in points.
func FontSize(pt int) Option { return func(l *Line) { l.FontSize = pt } }

// Layout is the finished, immutable content of a document.
type Layout struct {
	lines []Line
}

// Commands returns a copy of the drawing commands.
func (l *Layout) Commands() []Line {
	return append([]Line(nil), l.lines...)
}

// Lines returns the text of every non-blank line in order.
func (l *Layout) Lines() []string {
	out := make([]string, 0, len(l.lines))
	for _, ln := range l.lines {
		if !ln.Blank {
			out = append(out, ln.Text)
		}
	}
	return out
}

// Document collects drawing commands until Close finalizes it. Content can
// only be added before Close, so a finished layout is always complete.
type Document struct {
	mu     sync.Mutex
	lines  []Line
	closed bool
	err    error
}

// NewDocument opens an empty document.
func NewDocument() *Document {
	return &Document{}
}

func (d *Document) add(l Line) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		if d.err == nil {
			d.err = ErrDocumentClosed
		}
		return
	}
	d.lines = append(d.lines, l)
}

// Title adds a centered heading.
func (d *Document) Title(text string) *Document {
	return d.Text(text, AlignCenter(), FontSize(TitleFontSize))
}

// Text adds a line of text, left-aligned at the body size unless overridden.
func (d *Document) Text(text string, opts ...Option) *Document {
	l := Line{Text: text, Align: Left, FontSize: DefaultFontSize}
	for _, opt := range opts {
		opt(&l)
	}
	d.add(l)
	return d
}

// MoveDown adds an empty line.
func (d *Document) MoveDown() *Document {
	d.add(Line{Blank: true, FontSize: DefaultFontSize})
	return d
}

// Err reports whether content was written after Close.
func (d *Document) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Close finalizes the document and returns its layout. Closing twice, or
// having written to the document after it was closed, returns
// ErrDocumentClosed.
func (d *Document) Close() (*Layout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.err != nil {
		return nil, ErrDocumentClosed
	}
	d.closed = true
	return &Layout{lines: append([]Line(nil), d.lines...)}, nil
}

// Renderer turns a finished layout into a PDF.
type Renderer interface {
	Render(ctx context.Context, layout *Layout) ([]byte, error)
}
