package xmltree

import (
	"bytes"
	"encoding/xml"
)

const indentStep = "  "

// Serialize renders the tree as an indented UTF-8 document with an XML
// header. Output is deterministic: attribute and child order are taken from
// the tree as-is.
func Serialize(root *Node) []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	writeNode(&b, root, 0)
	return b.Bytes()
}

func writeNode(b *bytes.Buffer, n *Node, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString(indentStep)
	}
	b.WriteByte('<')
	b.WriteString(n.Name)
	for _, a := range n.Attr {
		b.WriteByte(' ')
		b.WriteString(a.Name)
		b.WriteString(`="`)
		escape(b, a.Value)
		b.WriteByte('"')
	}
	if len(n.Children) == 0 && n.Text == "" {
		b.WriteString("/>\n")
		return
	}
	b.WriteByte('>')
	if n.Text != "" {
		escape(b, n.Text)
	}
	if len(n.Children) > 0 {
		b.WriteByte('\n')
		for _, c := range n.Children {
			writeNode(b, c, depth+1)
		}
		for i := 0; i < depth; i++ {
			b.WriteString(indentStep)
		}
	}
	b.WriteString("</")
	b.WriteString(n.Name)
	b.WriteString(">\n")
}

// Fragment renders a single subtree at the given indent depth, for writers
// that emit a document piecewise instead of materializing it.
func Fragment(n *Node, depth int) []byte {
	var b bytes.Buffer
	writeNode(&b, n, depth)
	return b.Bytes()
}

// OpenTag renders just the opening tag of n at the given depth, leaving the
// element open for piecewise children.
func OpenTag(n *Node, depth int) []byte {
	var b bytes.Buffer
	for i := 0; i < depth; i++ {
		b.WriteString(indentStep)
	}
	b.WriteByte('<')
	b.WriteString(n.Name)
	for _, a := range n.Attr {
		b.WriteByte(' ')
		b.WriteString(a.Name)
		b.WriteString(`="`)
		escape(&b, a.Value)
		b.WriteByte('"')
	}
	b.WriteString(">\n")
	return b.Bytes()
}

// CloseTag renders the closing tag matching an earlier OpenTag.
func CloseTag(name string, depth int) []byte {
	var b bytes.Buffer
	for i := 0; i < depth; i++ {
		b.WriteString(indentStep)
	}
	b.WriteString("</")
	b.WriteString(name)
	b.WriteString(">\n")
	return b.Bytes()
}

func escape(b *bytes.Buffer, s string) {
	// never fails on a bytes.Buffer
	xml.EscapeText(b, []byte(s))
}
