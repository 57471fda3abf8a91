package parser

import (
	"io"
	"strings"
)

const (
	depthMarker   = '-'
	markerPerStep = 2
	fieldSep      = "::"
)

// Relation is one node of the parsed forest. Parent is empty for roots.
type Relation struct {
	Parent string
	Child  string
	Name   string
	Depth  int
	Line   int
}

// IsRoot reports whether the node starts a new tree.
func (r Relation) IsRoot() bool { return r.Parent == "" }

// HierarchyReader rebuilds a forest from the dash-indented tree file:
//
//	IPR000008::C2 domain::
//	--IPR002420::Phosphatidylinositol 3-kinase, C2 domain::
//
// Depth is the number of leading dashes divided by two. An explicit stack
// holds the keys of the current ancestor chain, so memory is bounded by
// the deepest branch.
type HierarchyReader struct {
	*lineReader
	stack   []string
	current Relation
}

// NewHierarchyReader reads relations from r.
func NewHierarchyReader(r io.Reader, opts ...Option) *HierarchyReader {
	return &HierarchyReader{lineReader: newLineReader("hierarchy", r, opts)}
}

// Next advances to the next well-formed line. It returns false at the end
// of input or on a read error; check Err afterwards.
func (h *HierarchyReader) Next() bool {
	for {
		line, ok := h.next()
		if !ok {
			return false
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if rel, ok := h.parse(line); ok {
			h.current = rel
			return true
		}
	}
}

// Relation returns the relation read by the last successful Next.
func (h *HierarchyReader) Relation() Relation { return h.current }

// Depth returns the height of the ancestor stack.
func (h *HierarchyReader) Depth() int { return len(h.stack) }

func (h *HierarchyReader) parse(line string) (Relation, bool) {
	run := 0
	for run < len(line) && line[run] == depthMarker {
		run++
	}
	depth := run / markerPerStep
	if run%markerPerStep != 0 {
		h.skip(line, depth, "odd depth marker run")
		return Relation{}, false
	}

	fields := strings.Split(line[run:], fieldSep)
	if len(fields) < 2 {
		h.skip(line, depth, "missing fields")
		return Relation{}, false
	}
	key := strings.TrimSpace(fields[0])
	name := strings.TrimSpace(fields[1])
	if key == "" {
		h.skip(line, depth, "empty key")
		return Relation{}, false
	}
	if depth > len(h.stack) {
		h.malformed(line, "depth exceeds current ancestry")
		return Relation{}, false
	}

	rel := Relation{Child: key, Name: name, Depth: depth, Line: h.Line()}
	if depth == 0 {
		h.stack = h.stack[:0]
	} else {
		h.stack = h.stack[:depth]
		rel.Parent = h.stack[depth-1]
	}
	h.stack = append(h.stack, key)
	return rel, true
}

// skip reports a malformed line and closes the branch it would have
// opened, so lines nested below it fail the ancestry check instead of
// attaching to an earlier sibling.
func (h *HierarchyReader) skip(line string, depth int, reason string) {
	h.malformed(line, reason)
	if depth < len(h.stack) {
		h.stack = h.stack[:depth]
	}
}

// ReadHierarchy drains r into a slice. Intended for small files and tests.
func ReadHierarchy(r io.Reader, opts ...Option) ([]Relation, error) {
	h := NewHierarchyReader(r, opts...)
	var out []Relation
	for h.Next() {
		out = append(out, h.Relation())
	}
	return out, h.Err()
}
