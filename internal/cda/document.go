// Package cda reads and rewrites CDA and CCD XML documents. Parsing keeps
// the raw bytes of every token, so only the elements and text that were
// changed are re-rendered on output.
package cda

import (
	"bytes"
	"fmt"
	"strings"

	"phi-sanitizer/internal/document"
)

// Type classifies a document by its document-level templateId.
type Type string

const (
	TypeCCD Type = "CCD"
	TypeCDA Type = "CDA"
)

const (
	NamespaceHL7 = "urn:hl7-org:v3"
	namespaceXSI = "http://www.w3.org/2001/XMLSchema-instance"

	ccdTemplateRoot = "2.16.840.1.113883.10.20.22.1.2"
)

// Declaration is prepended to output that lacks one.
const Declaration = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// Document is a parsed CDA document.
type Document struct {
	top      *node
	root     *node
	elements []*node

	// Namespace is the namespace of the document element. Element lookups
	// match it whatever prefix the document binds it to.
	Namespace string
	Type      Type

	// subject holds the element indices of addr and telecom nodes owned by
	// the patient and guardians, which sweeps over the whole document skip.
	subject map[int]bool
}

// Parse builds an editable document from raw.
func Parse(raw []byte) (*Document, error) {
	top, elements, err := parseTree(raw)
	if err != nil {
		return nil, err
	}
	d := &Document{top: top, elements: elements, Type: TypeCDA}
	for _, c := range top.children {
		if c.kind == elementNode {
			d.root = c
			break
		}
	}
	if d.root == nil {
		return nil, fmt.Errorf("%w: no document element", document.ErrParse)
	}
	d.Namespace = d.root.space

	for _, t := range d.children(d.root, "templateId") {
		if v, _ := t.attr("", "root"); strings.TrimSpace(v) == ccdTemplateRoot {
			d.Type = TypeCCD
			break
		}
	}
	d.markSubject()
	return d, nil
}

// HasDeclaration reports whether the document starts with an XML
// declaration.
func (d *Document) HasDeclaration() bool {
	for _, c := range d.top.children {
		switch {
		case c.kind == otherNode && bytes.HasPrefix(c.raw, []byte("<?xml")):
			return true
		case c.kind == textNode && strings.TrimSpace(c.text) == "":
			continue
		default:
			return false
		}
	}
	return false
}

// Serialize renders the document. Untouched nodes are emitted verbatim.
func (d *Document) Serialize() []byte {
	var b bytes.Buffer
	d.top.write(&b)
	return b.Bytes()
}

// WalkText passes the decoded character data of every text node inside
// the document element through fn.
func (d *Document) WalkText(fn func(string) string) int {
	changed := 0
	var walk func(n *node)
	walk = func(n *node) {
		for _, c := range n.children {
			switch c.kind {
			case textNode:
				if strings.TrimSpace(c.text) == "" {
					continue
				}
				if out := fn(c.text); out != c.text {
					c.text = out
					c.dirty = true
					changed++
				}
			case elementNode:
				walk(c)
			}
		}
	}
	walk(d.root)
	return changed
}

// Locate returns the fields addressed by role's paths in document order.
func (d *Document) Locate(role document.Role) []document.Field {
	spec, ok := rolePaths[role]
	if !ok {
		return nil
	}
	var out []document.Field
	for _, p := range spec.paths {
		for _, f := range d.eval(p) {
			if spec.outsideSubject && d.subject[f.node().index] {
				continue
			}
			out = append(out, f)
		}
	}
	return out
}

func (d *Document) is(n *node, local string) bool {
	return n.kind == elementNode && n.local == local && n.space == d.Namespace
}

func (d *Document) children(n *node, local string) []*node {
	var out []*node
	for _, c := range n.children {
		if d.is(c, local) {
			out = append(out, c)
		}
	}
	return out
}

func (d *Document) child(n *node, local string) *node {
	for _, c := range n.children {
		if d.is(c, local) {
			return c
		}
	}
	return nil
}

// descendants returns the elements named local below n in document order.
func (d *Document) descendants(n *node, local string) []*node {
	var out []*node
	for _, c := range n.children {
		if c.kind != elementNode {
			continue
		}
		if d.is(c, local) {
			out = append(out, c)
		}
		out = append(out, d.descendants(c, local)...)
	}
	return out
}

// within reports whether n has an ancestor named local.
func (d *Document) within(n *node, local string) bool {
	for p := n.parent; p != nil; p = p.parent {
		if d.is(p, local) {
			return true
		}
	}
	return false
}

// pathOf renders the element path of n for logs.
func pathOf(n *node) string {
	var parts []string
	for p := n; p != nil && p.index >= 0; p = p.parent {
		parts = append(parts, p.local)
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(parts[i])
	}
	return b.String()
}

func (d *Document) markSubject() {
	d.subject = make(map[int]bool)
	mark := func(nodes []*node) {
		for _, n := range nodes {
			d.subject[n.index] = true
		}
	}
	for _, role := range d.patientRoles() {
		mark(d.children(role, "addr"))
		mark(d.children(role, "telecom"))
	}
	for _, g := range d.guardians() {
		mark(d.children(g, "addr"))
		mark(d.children(g, "telecom"))
	}
}

func (d *Document) patientRoles() []*node {
	var out []*node
	for _, rt := range d.children(d.root, "recordTarget") {
		out = append(out, d.children(rt, "patientRole")...)
	}
	return out
}

func (d *Document) guardians() []*node {
	var out []*node
	for _, role := range d.patientRoles() {
		for _, p := range d.children(role, "patient") {
			out = append(out, d.children(p, "guardian")...)
		}
	}
	return out
}

var _ document.Document = (*Document)(nil)
