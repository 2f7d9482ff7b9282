// Package markup renders annotated plain text into the Telegram HTML subset.
//
// Annotation offsets are UTF-16 code units over the original text. Every
// inserted tag shifts the positions that follow it, so the compiler keeps a
// list of insertions in original coordinates and derives each new splice
// point from that list.
package markup

import (
	"sort"
	"strings"
	"unicode/utf16"

	"telegate/internal/domain"
)

// Annotation marks [Start, Start+Length) of the original text. Arg carries the
// URL for KindLink and is ignored otherwise.
type Annotation struct {
	Start  int
	Length int
	Kind   Kind
	Arg    string
}

// End is the exclusive end offset of the span.
func (a Annotation) End() int {
	return a.Start + a.Length
}

type insertionRole int

const (
	roleHead insertionRole = iota
	roleTail
)

type insertion struct {
	position int
	text     []uint16
	role     insertionRole
}

// Compile inserts the delimiters of every annotation into text.
//
// Annotations are processed ordered by start, then by length, so a shorter
// span sharing its start with a longer one ends up nested inside it. Offsets
// must satisfy 0 <= Start, 0 <= Length and End() <= UTF-16 length of text;
// out of range offsets give garbled output rather than an error.
func Compile(text string, annotations []Annotation) string {
	if len(annotations) == 0 {
		return text
	}

	ordered := make([]Annotation, len(annotations))
	copy(ordered, annotations)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Start == ordered[j].Start {
			return ordered[i].Length < ordered[j].Length
		}
		return ordered[i].Start < ordered[j].Start
	})

	buf := utf16.Encode([]rune(text))
	records := make([]insertion, 0, len(ordered)*2)
	for _, a := range ordered {
		buf, records = apply(buf, records, a)
	}
	return string(utf16.Decode(buf))
}

func apply(buf []uint16, records []insertion, a Annotation) ([]uint16, []insertion) {
	pair := Delimiters(a.Kind, a.Arg)
	open := utf16.Encode([]rune(pair.Open))
	closing := utf16.Encode([]rune(pair.Close))

	start, end := a.Start, a.End()
	adjustedStart := start + startShift(records, start)
	adjustedEnd := end + endShift(records, start, end)

	out := make([]uint16, 0, len(buf)+len(open)+len(closing))
	out = append(out, slice16(buf, 0, adjustedStart)...)
	out = append(out, open...)
	out = append(out, slice16(buf, adjustedStart, adjustedEnd)...)
	out = append(out, closing...)
	out = append(out, slice16(buf, adjustedEnd, len(buf))...)

	records = append(records,
		insertion{position: start, text: open, role: roleHead},
		insertion{position: end, text: closing, role: roleTail},
	)
	return out, records
}

// startShift counts insertions before start. A tail sitting exactly at start
// has already closed, so the new open tag goes after it.
func startShift(records []insertion, start int) int {
	shift := 0
	for _, r := range records {
		if start > r.position || (start == r.position && r.role == roleTail) {
			shift += len(r.text)
		}
	}
	return shift
}

// endShift counts insertions before end. An insertion exactly at end only
// counts when the record preceding it sits at the current start.
func endShift(records []insertion, start, end int) int {
	shift := 0
	for i, r := range records {
		if end > r.position || (end == r.position && i > 0 && records[i-1].position == start) {
			shift += len(r.text)
		}
	}
	return shift
}

// slice16 clamps its bounds the way a lenient substring would, so bad offsets
// never panic.
func slice16(buf []uint16, from, to int) []uint16 {
	from = clamp(from, 0, len(buf))
	to = clamp(to, 0, len(buf))
	if to < from {
		return nil
	}
	return buf[from:to]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var escaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")

// Escape neutralises angle brackets in user supplied text. Ampersands are
// left alone. Use EscapeAnnotated when the text carries annotations.
func Escape(text string) string {
	return escaper.Replace(text)
}

// EscapeAnnotated escapes text like Escape and moves every annotation into the
// coordinates of the escaped text. Each bracket before an offset grows it by
// the three extra units of its entity, so spans keep covering the same
// characters.
func EscapeAnnotated(text string, annotations []Annotation) (string, []Annotation) {
	units := utf16.Encode([]rune(text))
	// grown[i] is the growth of the prefix units[:i].
	grown := make([]int, len(units)+1)
	for i, u := range units {
		grown[i+1] = grown[i]
		if u == '<' || u == '>' {
			grown[i+1] += 3
		}
	}
	shift := func(pos int) int {
		return pos + grown[clamp(pos, 0, len(units))]
	}

	escaped := Escape(text)
	if annotations == nil {
		return escaped, nil
	}
	out := make([]Annotation, len(annotations))
	for i, a := range annotations {
		start := shift(a.Start)
		out[i] = a
		out[i].Start = start
		out[i].Length = shift(a.End()) - start
	}
	return escaped, out
}

// CompileEscaped escapes text and compiles the annotations against it.
func CompileEscaped(text string, annotations []Annotation) string {
	return Compile(EscapeAnnotated(text, annotations))
}

// FromEntities converts Telegram message entities into annotations.
func FromEntities(entities []domain.MessageEntity) []Annotation {
	if len(entities) == 0 {
		return nil
	}
	out := make([]Annotation, 0, len(entities))
	for _, e := range entities {
		out = append(out, Annotation{
			Start:  e.Offset,
			Length: e.Length,
			Kind:   ParseKind(e.Type),
			Arg:    e.URL,
		})
	}
	return out
}
