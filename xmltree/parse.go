package xmltree

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// Parse reads a complete document into a structural tree. Malformed input is
// reported as *SyntaxError with the exact line and column. Documents in any
// charset known to the WHATWG encoding index (ISO-8859-1, Windows-1252,
// Shift_JIS, ...) are accepted; the tree is always UTF-8.
func Parse(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charsetReader

	var root *Node
	var stack []*Node
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, locate(data, dec.InputOffset(), err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				n.Attr = append(n.Attr, Attr{Name: a.Name.Local, Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, locate(data, dec.InputOffset(), fmt.Errorf("multiple root elements"))
				}
				root = n
			} else {
				top := stack[len(stack)-1]
				top.Children = append(top.Children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			top := stack[len(stack)-1]
			top.Text = strings.TrimSpace(top.Text)
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, &SyntaxError{Line: 1, Col: 1, Msg: "document has no root element"}
	}
	return root, nil
}

// locate converts a decoder error into a *SyntaxError, deriving line and
// column from the byte offset the decoder stopped at.
func locate(data []byte, offset int64, err error) error {
	if offset < 0 || offset > int64(len(data)) {
		offset = int64(len(data))
	}
	head := data[:offset]
	line := 1 + bytes.Count(head, []byte{'\n'})
	col := int(offset) - bytes.LastIndexByte(head, '\n')
	msg := err.Error()
	if se, ok := err.(*xml.SyntaxError); ok {
		msg = se.Msg
	}
	return &SyntaxError{Line: line, Col: col, Msg: msg}
}

// charsetReader decodes non-UTF-8 documents declared via the XML header.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(input), nil
}
