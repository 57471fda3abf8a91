// Package parser reads the flat-text InterPro release files: the entry
// list, the parent/child tree, the interpro2go mapping and the
// protein2ipr join. Every reader is lazy and single-pass; malformed lines
// are reported through a callback and skipped.
package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/tphakala/interpro-loader/internal/errors"
)

// maxLineLength bounds a single input line.
const maxLineLength = 1 << 20

// Malformed describes a skipped input line.
type Malformed struct {
	File   string
	Line   int
	Text   string
	Reason string
}

// Err converts the record into a malformed-record error.
func (m Malformed) Err() error {
	text := m.Text
	if len(text) > 120 {
		text = text[:120] + "..."
	}
	return errors.Newf("%s line %d: %s", m.File, m.Line, m.Reason).
		Component("parser").
		Category(errors.CategoryMalformedRecord).
		Priority(errors.PriorityLow).
		Context("file", m.File).
		Context("line", m.Line).
		Context("text", text).
		Build()
}

// MalformedFunc receives every skipped line.
type MalformedFunc func(Malformed)

// Option configures a reader.
type Option func(*lineReader)

// OnMalformed registers the callback for skipped lines.
func OnMalformed(fn MalformedFunc) Option {
	return func(r *lineReader) { r.onMalformed = fn }
}

// lineReader is the scanner shared by all readers.
type lineReader struct {
	file        string
	scanner     *bufio.Scanner
	line        int
	skipped     int
	onMalformed MalformedFunc
	err         error
}

func newLineReader(file string, r io.Reader, opts []Option) *lineReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	lr := &lineReader{file: file, scanner: scanner}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// next returns the next line without its line terminator. ok is false at
// the end of input or on a read error, which is kept for Err.
func (r *lineReader) next() (string, bool) {
	if r.err != nil {
		return "", false
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			r.err = errors.New(err).
				Component("parser").
				Category(errors.CategorySourceFetch).
				Priority(errors.PriorityHigh).
				Context("file", r.file).
				Context("line", r.line+1).
				Build()
		}
		return "", false
	}
	r.line++
	return strings.TrimRight(r.scanner.Text(), "\r"), true
}

func (r *lineReader) malformed(text, reason string) {
	r.skipped++
	if r.onMalformed != nil {
		r.onMalformed(Malformed{File: r.file, Line: r.line, Text: text, Reason: reason})
	}
}

// Line returns the number of lines consumed so far.
func (r *lineReader) Line() int { return r.line }

// Skipped returns the number of malformed lines skipped so far.
func (r *lineReader) Skipped() int { return r.skipped }

// Err returns the read error that ended iteration, if any. Reaching the
// end of input is not an error.
func (r *lineReader) Err() error { return r.err }
