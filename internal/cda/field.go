package cda

import (
	"strings"

	"phi-sanitizer/internal/document"
)

type field interface {
	document.Field
	node() *node
}

// textField addresses the character data of an element.
type textField struct {
	n *node
}

func (f *textField) node() *node { return f.n }

func (f *textField) Value() string { return strings.TrimSpace(f.n.textValue()) }

// SetValue replaces the text. Elements without text are left empty.
func (f *textField) SetValue(v string) {
	if f.Value() == "" {
		return
	}
	f.n.setText(v)
}

func (f *textField) Address() string { return pathOf(f.n) }

// attrField addresses one attribute of an element.
type attrField struct {
	n     *node
	space string
	local string
}

func (f *attrField) node() *node { return f.n }

func (f *attrField) Value() string {
	v, _ := f.n.attr(f.space, f.local)
	return v
}

// SetValue writes the attribute when it is present. Missing attributes
// are not added.
func (f *attrField) SetValue(v string) { f.n.setAttr(f.space, f.local, v) }

func (f *attrField) Address() string {
	name := f.local
	if f.space == namespaceXSI {
		name = "xsi:" + name
	}
	return pathOf(f.n) + "/@" + name
}

func text(n *node) document.Field { return &textField{n: n} }

func attribute(n *node, local string) document.Field {
	if _, ok := n.attr("", local); !ok {
		return nil
	}
	return &attrField{n: n, local: local}
}
