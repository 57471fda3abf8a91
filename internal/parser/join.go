package parser

import (
	"io"
	"strconv"
	"strings"
)

// Column positions in protein2ipr.dat. Column 2 (entry name) is unused.
const (
	joinColSubject = 0
	joinColEntry   = 1
	joinColTag     = 3
	joinColStart   = 4
	joinColEnd     = 5
	joinMinColumns = 6
)

// JoinRow is one subject to entry annotation.
type JoinRow struct {
	Subject string
	Entry   string
	Tag     string
	Start   int
	End     int
	Line    int
}

// JoinReader reads the subject-sorted join file in bounded chunks. Sort
// order is assumed, not verified.
type JoinReader struct {
	*lineReader
	rows int64
}

// NewJoinReader reads join rows from r, which must already be decompressed.
func NewJoinReader(r io.Reader, opts ...Option) *JoinReader {
	return &JoinReader{lineReader: newLineReader("join", r, opts)}
}

// ReadChunk reads up to size well-formed rows into buf, reusing its
// storage. At the end of input it returns the final partial chunk, then
// (nil, io.EOF). Any other error is a read failure.
func (j *JoinReader) ReadChunk(buf []JoinRow, size int) ([]JoinRow, error) {
	if size <= 0 {
		size = 1
	}
	buf = buf[:0]
	for len(buf) < size {
		line, ok := j.next()
		if !ok {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		row, ok := j.parse(line)
		if !ok {
			continue
		}
		buf = append(buf, row)
	}
	j.rows += int64(len(buf))

	if err := j.Err(); err != nil {
		return buf, err
	}
	if len(buf) == 0 {
		return nil, io.EOF
	}
	return buf, nil
}

// Rows returns the number of well-formed rows returned so far.
func (j *JoinReader) Rows() int64 { return j.rows }

func (j *JoinReader) parse(line string) (JoinRow, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) < joinMinColumns {
		j.malformed(line, "expected at least 6 tab-separated columns")
		return JoinRow{}, false
	}

	row := JoinRow{
		Subject: strings.TrimSpace(fields[joinColSubject]),
		Entry:   strings.TrimSpace(fields[joinColEntry]),
		Tag:     strings.TrimSpace(fields[joinColTag]),
		Line:    j.Line(),
	}
	if row.Subject == "" || row.Entry == "" {
		j.malformed(line, "empty subject or entry")
		return JoinRow{}, false
	}

	var err error
	if row.Start, err = strconv.Atoi(strings.TrimSpace(fields[joinColStart])); err != nil {
		j.malformed(line, "invalid span start")
		return JoinRow{}, false
	}
	if row.End, err = strconv.Atoi(strings.TrimSpace(fields[joinColEnd])); err != nil {
		j.malformed(line, "invalid span end")
		return JoinRow{}, false
	}
	return row, true
}
