// Package tree holds the addressable element tree produced by the
// hierarchical parsers (XML, HTML) and consumed by the flattener.
package tree

import "strings"

// Node is one element of a parsed hierarchical source.
type Node struct {
	Name     string
	Attrs    map[string]string
	Text     string
	Children []*Node
}

// Attr returns the attribute value and whether it exists.
func (n *Node) Attr(name string) (string, bool) {
	v, ok := n.Attrs[name]
	return v, ok
}

// AppendChild attaches a child node, preserving document order.
func (n *Node) AppendChild(c *Node) {
	n.Children = append(n.Children, c)
}

// AppendText accumulates trimmed character data into the node's Text.
func (n *Node) AppendText(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	if n.Text != "" {
		n.Text += " "
	}
	n.Text += s
}

// Walk visits every node depth-first in document order. The ancestors slice
// is ordered root-first and must not be retained past the callback.
func (n *Node) Walk(visit func(node *Node, ancestors []*Node)) {
	n.walk(nil, visit)
}

func (n *Node) walk(ancestors []*Node, visit func(node *Node, ancestors []*Node)) {
	visit(n, ancestors)
	ancestors = append(ancestors, n)
	for _, c := range n.Children {
		c.walk(ancestors, visit)
	}
}

// Count returns how many nodes in the subtree carry the given element name.
func (n *Node) Count(name string) int {
	total := 0
	n.Walk(func(node *Node, _ []*Node) {
		if node.Name == name {
			total++
		}
	})
	return total
}
