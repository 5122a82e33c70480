package hl7v2

import (
	"fmt"
	"strings"
)

// fieldRef addresses (segment, field, repetition, component). comp 0 is
// the whole repetition.
type fieldRef struct {
	msg   *Message
	seg   *Segment
	field int
	rep   int
	comp  int
}

func (f *fieldRef) reps() []string {
	if f.seg == nil || f.field >= len(f.seg.Fields) {
		return nil
	}
	if f.seg.header && f.field <= 2 {
		return []string{f.seg.Fields[f.field]}
	}
	return strings.Split(f.seg.Fields[f.field], string(f.msg.Delims.Repetition))
}

func (f *fieldRef) present() bool {
	reps := f.reps()
	if f.rep >= len(reps) {
		return false
	}
	if f.comp == 0 {
		return true
	}
	return f.comp <= len(strings.Split(reps[f.rep], string(f.msg.Delims.Component)))
}

// Value returns the unescaped value, or "" when the position is absent.
func (f *fieldRef) Value() string {
	if !f.present() {
		return ""
	}
	r := f.reps()[f.rep]
	if f.comp == 0 {
		return f.msg.unescape(r)
	}
	return f.msg.unescape(strings.Split(r, string(f.msg.Delims.Component))[f.comp-1])
}

// SetValue escapes v and writes it. Absent positions are left alone so a
// replacement never adds fields or components.
func (f *fieldRef) SetValue(v string) {
	if !f.present() || (f.seg.header && f.field <= 2) {
		return
	}
	v = f.msg.Escape(v)
	reps := f.reps()
	if f.comp == 0 {
		reps[f.rep] = v
	} else {
		comps := strings.Split(reps[f.rep], string(f.msg.Delims.Component))
		comps[f.comp-1] = v
		reps[f.rep] = strings.Join(comps, string(f.msg.Delims.Component))
	}
	f.seg.Fields[f.field] = strings.Join(reps, string(f.msg.Delims.Repetition))
}

func (f *fieldRef) Address() string {
	addr := fmt.Sprintf("%s-%d", f.seg.Tag, f.field)
	if f.comp > 0 {
		addr += fmt.Sprintf(".%d", f.comp)
	}
	if f.rep > 0 {
		addr += fmt.Sprintf("[%d]", f.rep)
	}
	return addr
}

// Escape applies HL7 escape sequences so a value cannot introduce
// delimiters.
func (m *Message) Escape(v string) string {
	d := m.Delims
	esc := string(d.Escape)
	if !strings.ContainsAny(v, fieldSep+string([]byte{d.Component, d.Repetition, d.Escape, d.Subcomponent})) {
		return v
	}
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		switch c := v[i]; c {
		case d.Escape:
			b.WriteString(esc + "E" + esc)
		case '|':
			b.WriteString(esc + "F" + esc)
		case d.Component:
			b.WriteString(esc + "S" + esc)
		case d.Subcomponent:
			b.WriteString(esc + "T" + esc)
		case d.Repetition:
			b.WriteString(esc + "R" + esc)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func (m *Message) unescape(v string) string {
	d := m.Delims
	esc := string(d.Escape)
	if !strings.Contains(v, esc) {
		return v
	}
	return strings.NewReplacer(
		esc+"F"+esc, fieldSep,
		esc+"S"+esc, string(d.Component),
		esc+"T"+esc, string(d.Subcomponent),
		esc+"R"+esc, string(d.Repetition),
		esc+"E"+esc, esc,
	).Replace(v)
}
