// Package hl7v2 is the segment/field adapter for pipe-delimited HL7 v2
// messages. Parsing keeps enough of the original layout that a message
// with no edits serializes back to the exact input bytes.
package hl7v2

import (
	"fmt"
	"regexp"
	"strings"

	"phi-sanitizer/internal/document"
)

const (
	fieldSep = "|"

	// TypeUnknown is reported when no allow-listed message type is found.
	TypeUnknown = "UNKNOWN"
)

// KnownTypes are the message type prefixes accepted when reading message metadata.
var KnownTypes = map[string]bool{
	"ADT": true,
	"ORU": true,
	"ORM": true,
	"MDM": true,
	"SIU": true,
	"DFT": true,
	"VXU": true,
	"TRN": true,
}

// Non-standard senders move MSH-9 and MSH-12; try these in order.
var (
	typeProbe    = []int{9, 10, 11}
	versionProbe = []int{12, 13, 14}
)

var segmentTag = regexp.MustCompile(`^[A-Z][A-Z0-9]{2}$`)

// headerTags carry the encoding characters in field 2.
var headerTags = map[string]bool{"MSH": true, "FHS": true, "BHS": true}

// Delimiters are the separators declared in the header's encoding field.
type Delimiters struct {
	Component    byte
	Repetition   byte
	Escape       byte
	Subcomponent byte
}

// DefaultDelimiters are used when a message declares none.
var DefaultDelimiters = Delimiters{Component: '^', Repetition: '~', Escape: '\\', Subcomponent: '&'}

func delimitersFrom(enc string) Delimiters {
	d := DefaultDelimiters
	if len(enc) > 0 {
		d.Component = enc[0]
	}
	if len(enc) > 1 {
		d.Repetition = enc[1]
	}
	if len(enc) > 2 {
		d.Escape = enc[2]
	}
	if len(enc) > 3 {
		d.Subcomponent = enc[3]
	}
	return d
}

// Segment is one record. For header segments Fields[1] is the field
// separator and Fields[2] the encoding characters regardless of how the
// sender laid them out, so Fields[n] is always field n.
type Segment struct {
	Tag    string
	Fields []string

	header   bool
	attached bool   // "MSH^~\&|..." layout
	raw      string // lines that are not segments (blank, wrapped text)
}

// IsText reports whether the record is an unparsed line.
func (s *Segment) IsText() bool { return s.Tag == "" }

func (s *Segment) String() string {
	switch {
	case s.IsText():
		return s.raw
	case !s.header:
		return strings.Join(s.Fields, fieldSep)
	case s.attached && len(s.Fields) == 3:
		return s.Tag + s.Fields[2]
	case s.attached:
		return s.Tag + s.Fields[2] + fieldSep + strings.Join(s.Fields[3:], fieldSep)
	default:
		return s.Tag + fieldSep + strings.Join(s.Fields[2:], fieldSep)
	}
}

// Message is a parsed HL7 v2 message.
type Message struct {
	Segments []*Segment
	Type     string
	Version  string
	Delims   Delimiters

	lineSep string
}

// Parse parses raw bytes into a Message.
func Parse(raw []byte) (*Message, error) {
	text := string(raw)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty message", document.ErrParse)
	}

	m := &Message{lineSep: detectLineSep(text), Delims: DefaultDelimiters}
	sawSegment := false

	for _, line := range strings.Split(text, m.lineSep) {
		seg, ok := parseSegment(line)
		if !ok {
			if !sawSegment && strings.TrimSpace(line) != "" {
				return nil, fmt.Errorf("%w: line does not start with a segment tag: %.20q", document.ErrParse, line)
			}
			m.Segments = append(m.Segments, &Segment{raw: line})
			continue
		}
		if !sawSegment && seg.header {
			m.Delims = delimitersFrom(seg.Fields[2])
		}
		sawSegment = true
		m.Segments = append(m.Segments, seg)
	}

	m.extractMetadata()
	return m, nil
}

func detectLineSep(text string) string {
	switch {
	case strings.Contains(text, "\r\n"):
		return "\r\n"
	case strings.Contains(text, "\r"):
		return "\r"
	default:
		return "\n"
	}
}

func parseSegment(line string) (*Segment, bool) {
	if len(line) < 3 || !segmentTag.MatchString(line[:3]) {
		return nil, false
	}
	tag := line[:3]

	if headerTags[tag] {
		seg := &Segment{Tag: tag, header: true}
		if strings.HasPrefix(line[3:], fieldSep) {
			// MSH|^~\&|SENDAPP|...
			seg.Fields = append([]string{tag, fieldSep}, strings.Split(line[4:], fieldSep)...)
			return seg, true
		}
		// MSH^~\&|SENDAPP|...
		seg.attached = true
		rest := line[3:]
		idx := strings.Index(rest, fieldSep)
		if idx < 0 {
			seg.Fields = []string{tag, fieldSep, rest}
			return seg, true
		}
		seg.Fields = append([]string{tag, fieldSep, rest[:idx]}, strings.Split(rest[idx+1:], fieldSep)...)
		return seg, true
	}

	if len(line) > 3 && line[3:4] != fieldSep {
		return nil, false
	}
	return &Segment{Tag: tag, Fields: strings.Split(line, fieldSep)}, true
}

func (m *Message) extractMetadata() {
	m.Type = TypeUnknown
	msh := m.First("MSH")
	if msh == nil {
		return
	}

	comp := string(m.Delims.Component)
	for _, n := range typeProbe {
		if n >= len(msh.Fields) || !strings.Contains(msh.Fields[n], comp) {
			continue
		}
		parts := strings.Split(msh.Fields[n], comp)
		if KnownTypes[parts[0]] {
			m.Type = parts[0] + comp + parts[1]
			break
		}
	}

	for _, n := range versionProbe {
		if n >= len(msh.Fields) {
			continue
		}
		v := msh.Fields[n]
		if v != "" && v[0] >= '0' && v[0] <= '9' && strings.Contains(v, ".") {
			m.Version = v
			break
		}
	}
}

// All returns every segment with tag, in document order.
func (m *Message) All(tag string) []*Segment {
	var out []*Segment
	for _, s := range m.Segments {
		if s.Tag == tag {
			out = append(out, s)
		}
	}
	return out
}

// First returns the first segment with tag, or nil.
func (m *Message) First(tag string) *Segment {
	for _, s := range m.Segments {
		if s.Tag == tag {
			return s
		}
	}
	return nil
}

// Serialize writes the message back to its wire form.
func (m *Message) Serialize() []byte {
	lines := make([]string, len(m.Segments))
	for i, s := range m.Segments {
		lines[i] = s.String()
	}
	return []byte(strings.Join(lines, m.lineSep))
}

// WalkText passes every field value outside the header's delimiter fields,
// plus any unparsed text lines, through fn.
func (m *Message) WalkText(fn func(string) string) int {
	changed := 0
	for _, s := range m.Segments {
		if s.IsText() {
			if out := fn(s.raw); out != s.raw {
				s.raw = out
				changed++
			}
			continue
		}
		start := 1
		if s.header {
			start = 3
		}
		for i := start; i < len(s.Fields); i++ {
			if out := fn(s.Fields[i]); out != s.Fields[i] {
				s.Fields[i] = out
				changed++
			}
		}
	}
	return changed
}

// Field returns a handle to seg field n, repetition 0, component comp
// (0 for the whole repetition).
func (m *Message) Field(seg *Segment, n, comp int) document.Field {
	return &fieldRef{msg: m, seg: seg, field: n, comp: comp}
}

// Repetitions returns handles to component comp of every repetition of
// field n. An absent field yields no handles.
func (m *Message) Repetitions(seg *Segment, n, comp int) []document.Field {
	if seg == nil || n >= len(seg.Fields) || (seg.header && n <= 2) {
		return nil
	}
	reps := strings.Split(seg.Fields[n], string(m.Delims.Repetition))
	out := make([]document.Field, 0, len(reps))
	for r := range reps {
		f := &fieldRef{msg: m, seg: seg, field: n, rep: r, comp: comp}
		if f.present() {
			out = append(out, f)
		}
	}
	return out
}

// Locate implements document.Document using the role table.
func (m *Message) Locate(role document.Role) []document.Field {
	var out []document.Field
	for _, loc := range roleTable[role] {
		for _, seg := range m.All(loc.Segment) {
			out = append(out, m.Repetitions(seg, loc.Field, loc.Component)...)
		}
	}
	return out
}

var _ document.Document = (*Message)(nil)
