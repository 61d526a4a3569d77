package rewrite

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const base64Digits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// SourceMap is a Source Map revision 3 document.
type SourceMap struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// JSON encodes the map.
func (s *SourceMap) JSON() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding source map: %w", err)
	}

	return data, nil
}

type position struct {
	line, col int
}

// lineIndex converts byte offsets into zero-based line and UTF-16 column
// positions.
type lineIndex struct {
	src    []byte
	starts []int
}

func newLineIndex(src []byte) *lineIndex {
	starts := []int{0}

	for i, c := range src {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}

	return &lineIndex{src: src, starts: starts}
}

func (l *lineIndex) position(offset int) position {
	line := sort.Search(len(l.starts), func(i int) bool { return l.starts[i] > offset }) - 1

	return position{line: line, col: utf16Len(l.src[l.starts[line]:offset])}
}

func utf16Len(b []byte) int {
	n := 0

	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}

		b = b[size:]
	}

	return n
}

type segment struct {
	genCol int
	orig   position
}

type mapBuilder struct {
	lines [][]segment
	col   int
}

func (m *mapBuilder) mark(orig position) {
	line := len(m.lines) - 1
	segs := m.lines[line]

	if n := len(segs); n > 0 && segs[n-1].genCol == m.col {
		return
	}

	m.lines[line] = append(segs, segment{genCol: m.col, orig: orig})
}

func (m *mapBuilder) newline() {
	m.lines = append(m.lines, nil)
	m.col = 0
}

// SourceMap builds a map from the rendered output back to the original
// source. Copied text is mapped at every line start; replacement text maps to
// the start of the range it replaced.
func (r *Rewriter) SourceMap(file, source string) *SourceMap {
	index := newLineIndex(r.src)
	builder := &mapBuilder{lines: [][]segment{nil}}

	for _, p := range r.pieces(0, len(r.src)) {
		builder.mark(index.position(p.orig))

		text := p.text
		offset := p.orig

		for text != "" {
			nl := strings.IndexByte(text, '\n')
			if nl < 0 {
				builder.col += utf16Len([]byte(text))
				break
			}

			builder.newline()

			text = text[nl+1:]
			if p.copied {
				offset += nl + 1
			}

			if text != "" {
				builder.mark(index.position(offset))
			}
		}
	}

	return &SourceMap{
		Version:        3,
		File:           file,
		Sources:        []string{source},
		SourcesContent: []string{string(r.src)},
		Names:          []string{},
		Mappings:       encodeMappings(builder.lines),
	}
}

func encodeMappings(lines [][]segment) string {
	var (
		b        strings.Builder
		prevOrig position
	)

	for i, segs := range lines {
		if i > 0 {
			b.WriteByte(';')
		}

		prevCol := 0

		for j, seg := range segs {
			if j > 0 {
				b.WriteByte(',')
			}

			writeVLQ(&b, seg.genCol-prevCol)

			// single source: the source index delta is always zero
			writeVLQ(&b, 0)

			writeVLQ(&b, seg.orig.line-prevOrig.line)
			writeVLQ(&b, seg.orig.col-prevOrig.col)

			prevCol = seg.genCol
			prevOrig = seg.orig
		}
	}

	return b.String()
}

func writeVLQ(b *strings.Builder, v int) {
	vlq := v << 1
	if v < 0 {
		vlq = (-v << 1) | 1
	}

	for {
		digit := vlq & 31
		vlq >>= 5

		if vlq > 0 {
			digit |= 32
		}

		b.WriteByte(base64Digits[digit])

		if vlq == 0 {
			return
		}
	}
}
