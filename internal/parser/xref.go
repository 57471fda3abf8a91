package parser

import (
	"io"
	"regexp"
	"strings"
)

// Precompiled patterns for interpro2go lines such as
//
//	InterPro:IPR000003 Retinoid X receptor/HNF4 > GO:DNA binding ; GO:0003677
var (
	entryKeyPattern = regexp.MustCompile(`InterPro:(IPR\d+)`)
	termKeyPattern  = regexp.MustCompile(`GO:(\d{7})`)
	termNamePattern = regexp.MustCompile(`>\s*GO:(.*?)\s*;\s*GO:\d{7}`)
)

// TermPrefix is prepended to the seven digit GO identifier to form the
// stored term key.
const TermPrefix = "GO:"

// CrossRefRecord maps an entry to a cross-reference term.
type CrossRefRecord struct {
	EntryKey string
	TermKey  string // GO:0003677
	TermName string // may be empty
	Line     int
}

// CrossRefReader reads the interpro2go mapping. Lines starting with '!'
// are comments.
type CrossRefReader struct {
	*lineReader
	current CrossRefRecord
}

// NewCrossRefReader reads mapping records from r.
func NewCrossRefReader(r io.Reader, opts ...Option) *CrossRefReader {
	return &CrossRefReader{lineReader: newLineReader("crossref", r, opts)}
}

// Next advances to the next well-formed mapping.
func (c *CrossRefReader) Next() bool {
	for {
		line, ok := c.next()
		if !ok {
			return false
		}
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "!") {
			continue
		}

		entry := entryKeyPattern.FindStringSubmatch(line)
		if entry == nil {
			c.malformed(line, "no InterPro accession")
			continue
		}
		term := termKeyPattern.FindAllStringSubmatch(line, -1)
		if term == nil {
			c.malformed(line, "no GO identifier")
			continue
		}

		rec := CrossRefRecord{
			EntryKey: entry[1],
			// The identifier is the last GO:nnnnnnn on the line; the name
			// segment may itself start with "GO:".
			TermKey: TermPrefix + term[len(term)-1][1],
			Line:    c.Line(),
		}
		if name := termNamePattern.FindStringSubmatch(line); name != nil {
			rec.TermName = name[1]
		}
		c.current = rec
		return true
	}
}

// Record returns the mapping read by the last successful Next.
func (c *CrossRefReader) Record() CrossRefRecord { return c.current }

// NormalizeTermKey accepts "GO:0003677" or "0003677" and returns the stored form.
func NormalizeTermKey(key string) string {
	key = strings.TrimSpace(key)
	if strings.HasPrefix(strings.ToUpper(key), TermPrefix) {
		return TermPrefix + key[len(TermPrefix):]
	}
	return TermPrefix + key
}
