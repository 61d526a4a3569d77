// Package rewrite accumulates text edits against an immutable source and
// renders the result together with a source map.
package rewrite

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrOverlap is returned when an edit partially overlaps an earlier one or
// falls strictly inside an earlier overwrite.
var ErrOverlap = errors.New("overlapping edit")

// ErrRange is returned for offsets outside the source.
var ErrRange = errors.New("edit out of range")

type edit struct {
	start, end int
	text       string
	seq        int
}

func (e edit) insert() bool { return e.start == e.end }

// Rewriter records edits on byte offsets of the original source. Offsets
// always refer to the original text, never to the rendered output.
type Rewriter struct {
	src   []byte
	edits []edit
	seq   int
}

// New returns a Rewriter over src.
func New(src []byte) *Rewriter {
	return &Rewriter{src: src}
}

func (r *Rewriter) checkRange(start, end int) error {
	if start < 0 || end > len(r.src) || start > end {
		return fmt.Errorf("%w: [%d,%d) in %d bytes", ErrRange, start, end, len(r.src))
	}

	return nil
}

// Overwrite replaces src[start:end] with text. Earlier edits lying entirely
// inside the range are discarded; an overwrite of the same range is
// replaced.
func (r *Rewriter) Overwrite(start, end int, text string) error {
	if err := r.checkRange(start, end); err != nil {
		return err
	}

	if start == end {
		return fmt.Errorf("%w: empty overwrite at %d", ErrRange, start)
	}

	kept := r.edits[:0:0]

	for _, e := range r.edits {
		switch {
		case e.insert():
			if e.start > start && e.start < end {
				continue
			}
		case e.start >= start && e.end <= end:
			continue
		case e.end <= start || e.start >= end:
		default:
			return fmt.Errorf("%w: [%d,%d) crosses [%d,%d)", ErrOverlap, start, end, e.start, e.end)
		}

		kept = append(kept, e)
	}

	r.edits = kept
	r.add(start, end, text)

	return nil
}

// Remove deletes src[start:end].
func (r *Rewriter) Remove(start, end int) error {
	return r.Overwrite(start, end, "")
}

// AppendRight inserts text at pos. Insertions at the same position keep
// their call order.
func (r *Rewriter) AppendRight(pos int, text string) error {
	if err := r.checkRange(pos, pos); err != nil {
		return err
	}

	for _, e := range r.edits {
		if !e.insert() && pos > e.start && pos < e.end {
			return fmt.Errorf("%w: insertion at %d inside [%d,%d)", ErrOverlap, pos, e.start, e.end)
		}
	}

	r.add(pos, pos, text)

	return nil
}

func (r *Rewriter) add(start, end int, text string) {
	r.seq++
	r.edits = append(r.edits, edit{start: start, end: end, text: text, seq: r.seq})

	sort.SliceStable(r.edits, func(i, j int) bool {
		a, b := r.edits[i], r.edits[j]
		if a.start != b.start {
			return a.start < b.start
		}

		if a.insert() != b.insert() {
			return a.insert()
		}

		return a.seq < b.seq
	})
}

// Changed reports whether any edit was recorded.
func (r *Rewriter) Changed() bool {
	return len(r.edits) > 0
}

// Edits returns the number of live edits.
func (r *Rewriter) Edits() int {
	return len(r.edits)
}

// piece is a contiguous run of output text. orig is the source offset it maps
// back to; copied pieces map character by character.
type piece struct {
	text   string
	orig   int
	copied bool
}

func (r *Rewriter) pieces(start, end int) []piece {
	var out []piece

	cursor := start

	for _, e := range r.edits {
		if e.start < start || e.end > end {
			continue
		}

		if e.start > cursor {
			out = append(out, piece{text: string(r.src[cursor:e.start]), orig: cursor, copied: true})
		}

		if e.text != "" {
			out = append(out, piece{text: e.text, orig: e.start})
		}

		if e.end > cursor {
			cursor = e.end
		}
	}

	if cursor < end {
		out = append(out, piece{text: string(r.src[cursor:end]), orig: cursor, copied: true})
	}

	return out
}

// String renders the edited source.
func (r *Rewriter) String() string {
	return r.render(0, len(r.src))
}

// Slice renders src[start:end] with the edits that lie entirely inside it.
func (r *Rewriter) Slice(start, end int) string {
	if r.checkRange(start, end) != nil {
		return ""
	}

	return r.render(start, end)
}

func (r *Rewriter) render(start, end int) string {
	var b strings.Builder

	b.Grow(end - start)

	for _, p := range r.pieces(start, end) {
		b.WriteString(p.text)
	}

	return b.String()
}
