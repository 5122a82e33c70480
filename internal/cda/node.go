package cda

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"phi-sanitizer/internal/document"
)

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

type nodeKind int

const (
	elementNode nodeKind = iota
	textNode
	// comments, processing instructions and directives
	otherNode
)

// attr is an attribute with its prefix resolved to a namespace URI.
type attr struct {
	prefix string
	local  string
	space  string
	value  string
}

// node is one token of the parsed document. Unmodified nodes are written
// back from raw, so a document without edits round-trips byte for byte.
type node struct {
	kind     nodeKind
	index    int // document order among elements
	parent   *node
	children []*node

	prefix string
	local  string
	space  string
	attrs  []attr
	scope  map[string]string

	raw    []byte // start tag, character data, or the whole token
	rawEnd []byte // end tag, empty when self-closing
	text   string // decoded character data
	dirty  bool
}

func (n *node) selfClosing() bool { return n.kind == elementNode && len(n.rawEnd) == 0 }

func (n *node) attr(space, local string) (string, bool) {
	for _, a := range n.attrs {
		if a.local == local && a.space == space {
			return a.value, true
		}
	}
	return "", false
}

func (n *node) setAttr(space, local, v string) bool {
	for i := range n.attrs {
		if n.attrs[i].local == local && n.attrs[i].space == space {
			if n.attrs[i].value != v {
				n.attrs[i].value = v
				n.dirty = true
			}
			return true
		}
	}
	return false
}

// textValue concatenates the element's direct character data.
func (n *node) textValue() string {
	var b strings.Builder
	for _, c := range n.children {
		if c.kind == textNode {
			b.WriteString(c.text)
		}
	}
	return b.String()
}

// setText replaces the element's direct character data with v, keeping
// the surrounding whitespace. Elements without character data are left
// alone.
func (n *node) setText(v string) bool {
	var texts []*node
	for _, c := range n.children {
		if c.kind == textNode {
			texts = append(texts, c)
		}
	}
	if len(texts) == 0 {
		return false
	}
	full := n.textValue()
	trimmed := strings.TrimSpace(full)
	lead := full[:strings.Index(full, trimmed)]
	trail := full[len(lead)+len(trimmed):]
	texts[0].text = lead + v + trail
	texts[0].dirty = true
	for _, t := range texts[1:] {
		t.text = ""
		t.dirty = true
	}
	return true
}

func qname(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

func (n *node) write(b *bytes.Buffer) {
	switch n.kind {
	case textNode:
		if n.dirty {
			b.WriteString(escapeText(n.text))
		} else {
			b.Write(n.raw)
		}
	case otherNode:
		b.Write(n.raw)
	case elementNode:
		if n.dirty {
			n.writeStart(b)
		} else {
			b.Write(n.raw)
		}
		for _, c := range n.children {
			c.write(b)
		}
		b.Write(n.rawEnd)
	}
}

func (n *node) writeStart(b *bytes.Buffer) {
	b.WriteByte('<')
	b.WriteString(qname(n.prefix, n.local))
	for _, a := range n.attrs {
		b.WriteByte(' ')
		b.WriteString(qname(a.prefix, a.local))
		b.WriteString(`="`)
		b.WriteString(escapeAttr(a.value))
		b.WriteByte('"')
	}
	if n.selfClosing() {
		b.WriteString("/>")
	} else {
		b.WriteByte('>')
	}
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer(
		"&", "&amp;", "<", "&lt;", `"`, "&quot;",
		"\t", "&#x9;", "\n", "&#xA;", "\r", "&#xD;",
	)
)

// escapeText escapes character data. Unlike xml.EscapeText it leaves
// newlines and quotes alone so narrative blocks keep their layout.
func escapeText(s string) string { return textEscaper.Replace(s) }

func escapeAttr(s string) string { return attrEscaper.Replace(s) }

// parseTree reads raw into a node tree. The returned top node holds the
// prolog, the document element and anything after it.
func parseTree(raw []byte) (*node, []*node, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	// Non-UTF-8 declarations are passed through as bytes; unmodified text
	// is written back from raw either way.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }

	top := &node{kind: elementNode, index: -1, scope: map[string]string{"xml": xmlNamespace}}
	cur := top
	var elements []*node
	var prev int64

	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", document.ErrParse, err)
		}
		off := dec.InputOffset()
		seg := raw[prev:off]
		prev = off

		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{
				kind:   elementNode,
				index:  len(elements),
				parent: cur,
				prefix: t.Name.Space,
				local:  t.Name.Local,
				raw:    seg,
				scope:  cur.scope,
			}
			n.bindNamespaces(t.Attr)
			cur.children = append(cur.children, n)
			elements = append(elements, n)
			cur = n
		case xml.EndElement:
			if cur == top || t.Name.Space != cur.prefix || t.Name.Local != cur.local {
				return nil, nil, fmt.Errorf("%w: unexpected end element </%s>", document.ErrParse, qname(t.Name.Space, t.Name.Local))
			}
			cur.rawEnd = seg
			cur = cur.parent
		case xml.CharData:
			cur.children = append(cur.children, &node{kind: textNode, parent: cur, raw: seg, text: string(t)})
		default:
			cur.children = append(cur.children, &node{kind: otherNode, parent: cur, raw: seg})
		}
	}
	if cur != top {
		return nil, nil, fmt.Errorf("%w: unclosed element <%s>", document.ErrParse, qname(cur.prefix, cur.local))
	}
	if int(prev) != len(raw) {
		top.children = append(top.children, &node{kind: otherNode, parent: top, raw: raw[prev:]})
	}
	return top, elements, nil
}

// bindNamespaces applies xmlns declarations and resolves the element and
// attribute prefixes against the in-scope bindings.
func (n *node) bindNamespaces(attrs []xml.Attr) {
	copied := false
	for _, a := range attrs {
		var prefix string
		switch {
		case a.Name.Space == "xmlns":
			prefix = a.Name.Local
		case a.Name.Space == "" && a.Name.Local == "xmlns":
		default:
			continue
		}
		if !copied {
			scope := make(map[string]string, len(n.scope)+1)
			for k, v := range n.scope {
				scope[k] = v
			}
			n.scope = scope
			copied = true
		}
		n.scope[prefix] = a.Value
	}

	n.space = n.resolve(n.prefix)
	for _, a := range attrs {
		at := attr{prefix: a.Name.Space, local: a.Name.Local, value: a.Value}
		switch {
		case at.prefix == "xmlns", at.prefix == "" && at.local == "xmlns":
			at.space = "xmlns"
		case at.prefix != "":
			at.space = n.resolve(at.prefix)
		}
		n.attrs = append(n.attrs, at)
	}
}

// resolve maps a prefix to its namespace. Unbound prefixes resolve to
// themselves, as encoding/xml does.
func (n *node) resolve(prefix string) string {
	if uri, ok := n.scope[prefix]; ok {
		return uri
	}
	return prefix
}
