package xmltree

import (
	"encoding/xml"
	"io"
	"strings"
)

type (
	// Event is one step of a forward-only document traversal: StartEvent,
	// EndEvent or TextEvent. The cursor returns io.EOF after the document
	// end; it is finite and non-restartable.
	Event interface{ isEvent() }

	// StartEvent marks an element opening tag with its attributes.
	StartEvent struct {
		Name string
		Attr []Attr
	}

	// EndEvent marks an element closing tag.
	EndEvent struct {
		Name string
	}

	// TextEvent carries non-whitespace character data.
	TextEvent struct {
		Data string
	}
)

func (StartEvent) isEvent() {}
func (EndEvent) isEvent()   {}
func (TextEvent) isEvent()  {}

// Cursor is a pull-style reader over a document stream. Memory use is
// bounded by the largest single token, or by the largest subtree passed to
// Subtree; nothing else is retained.
type Cursor struct {
	dec   *xml.Decoder
	depth int
	err   error
}

// NewCursor wraps a byte stream in a cursor. The stream is consumed lazily;
// the caller keeps ownership and closes it.
func NewCursor(r io.Reader) *Cursor {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader
	return &Cursor{dec: dec}
}

// Depth returns the current element nesting depth; the depth is incremented
// before a StartEvent is returned and decremented before its EndEvent.
func (c *Cursor) Depth() int { return c.depth }

// Next returns the next event, io.EOF at the end of the document, or a
// *SyntaxError. After an error every subsequent call returns the same error.
func (c *Cursor) Next() (Event, error) {
	if c.err != nil {
		return nil, c.err
	}
	for {
		tok, err := c.dec.Token()
		if err == io.EOF {
			c.err = io.EOF
			return nil, io.EOF
		}
		if err != nil {
			if se, ok := err.(*xml.SyntaxError); ok {
				c.err = &SyntaxError{Line: se.Line, Msg: se.Msg}
			} else {
				c.err = err
			}
			return nil, c.err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			c.depth++
			ev := StartEvent{Name: t.Name.Local}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				ev.Attr = append(ev.Attr, Attr{Name: a.Name.Local, Value: a.Value})
			}
			return ev, nil
		case xml.EndElement:
			c.depth--
			return EndEvent{Name: t.Name.Local}, nil
		case xml.CharData:
			if s := strings.TrimSpace(string(t)); s != "" {
				return TextEvent{Data: s}, nil
			}
		}
	}
}

// Skip consumes events until the element whose StartEvent was returned last
// is closed, dropping the whole subtree.
func (c *Cursor) Skip() error {
	target := c.depth - 1
	for {
		ev, err := c.Next()
		if err != nil {
			return err
		}
		if _, ok := ev.(EndEvent); ok && c.depth == target {
			return nil
		}
	}
}

// Subtree materializes the element opened by start, consuming events up to
// and including its EndEvent. Only this one subtree is held in memory.
func (c *Cursor) Subtree(start StartEvent) (*Node, error) {
	root := &Node{Name: start.Name, Attr: start.Attr}
	stack := []*Node{root}
	for {
		ev, err := c.Next()
		if err != nil {
			if err == io.EOF {
				return nil, &SyntaxError{Line: 0, Msg: "unexpected end of document inside <" + start.Name + ">"}
			}
			return nil, err
		}
		switch e := ev.(type) {
		case StartEvent:
			n := &Node{Name: e.Name, Attr: e.Attr}
			top := stack[len(stack)-1]
			top.Children = append(top.Children, n)
			stack = append(stack, n)
		case TextEvent:
			stack[len(stack)-1].Text = e.Data
		case EndEvent:
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return root, nil
			}
		}
	}
}
