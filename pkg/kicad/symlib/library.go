package symlib

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Indent is prefixed to every line of a block in the merged output.
const Indent = "  "

// Library is a merged structured symbol library.
type Library struct {
	Header Header
	Blocks []string
}

// NewLibrary creates an empty library with the given header.
func NewLibrary(h Header) *Library {
	return &Library{Header: h}
}

// Add appends blocks in order.
func (l *Library) Add(blocks ...string) {
	l.Blocks = append(l.Blocks, blocks...)
}

// WriteTo writes the library in .kicad_sym form. Blocks are dedented by the
// indentation of their first line and re-indented with Indent.
func (l *Library) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}

	cw.line("(" + LibraryRoot)
	cw.line(Indent + "(version " + strconv.Itoa(l.Header.Version) + ")")
	cw.line(Indent + "(generator " + strconv.Quote(l.Header.Generator) + ")")
	for _, block := range l.Blocks {
		for _, line := range reindent(block) {
			cw.line(line)
		}
	}
	cw.line(")")

	if cw.err != nil {
		return cw.n, cw.err
	}
	return cw.n, cw.w.Flush()
}

// String renders the library as WriteTo would.
func (l *Library) String() string {
	var b strings.Builder
	_, _ = l.WriteTo(&b)
	return b.String()
}

func reindent(block string) []string {
	lines := strings.Split(block, "\n")
	first := lines[0]
	prefix := first[:len(first)-len(strings.TrimLeft(first, " \t"))]

	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = Indent + strings.TrimPrefix(line, prefix)
	}
	return out
}

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) line(s string) {
	if c.err != nil {
		return
	}
	n, err := c.w.WriteString(s + "\n")
	c.n += int64(n)
	c.err = err
}
