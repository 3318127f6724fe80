// Package xmltree implements the generic XML layer of the project-exchange
// engine: a structural tree for whole-document work, a serializer producing
// deterministic output, and a pull cursor for forward-only traversal without
// materializing the document.
//
// The tree is deliberately domain-agnostic; mapping between elements and the
// project model lives in the root package so that the DOM and streaming
// processors share a single parser.
package xmltree

type (
	// Attr is a single element attribute. Attribute order is preserved both
	// ways, as the exchange format round-trips documents byte-comparably.
	Attr struct {
		Name  string
		Value string
	}

	// Node is one element of a structural tree: a name, ordered attributes,
	// trimmed text content and ordered children. Namespace prefixes are
	// stripped on parse; the exchange format does not use them.
	Node struct {
		Name     string
		Attr     []Attr
		Text     string
		Children []*Node
	}
)

// Get returns the value of the named attribute, or "" when absent.
func (n *Node) Get(name string) string {
	for _, a := range n.Attr {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// Has reports whether the named attribute is present.
func (n *Node) Has(name string) bool {
	for _, a := range n.Attr {
		if a.Name == name {
			return true
		}
	}
	return false
}

// Set replaces the named attribute or appends it when absent.
func (n *Node) Set(name, value string) {
	for i, a := range n.Attr {
		if a.Name == name {
			n.Attr[i].Value = value
			return
		}
	}
	n.Attr = append(n.Attr, Attr{Name: name, Value: value})
}

// Child returns the first child element with the given name, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns all child elements with the given name, in order.
func (n *Node) ChildrenNamed(name string) []*Node {
	var ret []*Node
	for _, c := range n.Children {
		if c.Name == name {
			ret = append(ret, c)
		}
	}
	return ret
}

// Append adds a child element and returns it, for chained building.
func (n *Node) Append(child *Node) *Node {
	n.Children = append(n.Children, child)
	return child
}
