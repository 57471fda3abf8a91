package parser

import (
	"io"
	"strings"
)

// EntryRecord is one row of entry.list.
type EntryRecord struct {
	Accession string
	Type      string
	Name      string
	Line      int
}

// EntryReader reads the tab-separated entry list. The first line is a
// header (ENTRY_AC, ENTRY_TYPE, ENTRY_NAME) and is skipped.
type EntryReader struct {
	*lineReader
	headerSeen bool
	current    EntryRecord
}

// NewEntryReader reads entry records from r.
func NewEntryReader(r io.Reader, opts ...Option) *EntryReader {
	return &EntryReader{lineReader: newLineReader("entries", r, opts)}
}

// Next advances to the next well-formed record.
func (e *EntryReader) Next() bool {
	for {
		line, ok := e.next()
		if !ok {
			return false
		}
		if !e.headerSeen {
			e.headerSeen = true
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			e.malformed(line, "expected 3 tab-separated columns")
			continue
		}
		rec := EntryRecord{
			Accession: strings.TrimSpace(fields[0]),
			Type:      strings.TrimSpace(fields[1]),
			Name:      strings.TrimSpace(strings.Join(fields[2:], "\t")),
			Line:      e.Line(),
		}
		switch {
		case rec.Accession == "":
			e.malformed(line, "empty accession")
			continue
		case rec.Type == "":
			e.malformed(line, "empty type")
			continue
		case rec.Name == "":
			e.malformed(line, "empty name")
			continue
		}
		e.current = rec
		return true
	}
}

// Record returns the record read by the last successful Next.
func (e *EntryReader) Record() EntryRecord { return e.current }
