// Package xml parses hierarchical XML exports (the health tracker dump) into
// the element tree consumed by the flattener.
package xml

import (
	stdxml "encoding/xml"
	"fmt"
	"io"
	"os"

	"lifelog/internal/parser"
	"lifelog/internal/tree"
)

// ParseFile parses an XML document into a tree rooted at the document
// element. Attribute-bearing elements carry their attributes verbatim;
// character data accumulates into Node.Text.
//
// Unparseable markup fails with a parser.MalformedError. Files of this size
// (health exports run to hundreds of MB) still parse token-by-token, so the
// only whole-file allocation is the tree itself.
func ParseFile(path string) (*tree.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, parser.Malformed(path, err)
	}
	defer f.Close()

	root, err := Parse(f)
	if err != nil {
		return nil, parser.Malformed(path, err)
	}
	return root, nil
}

// Parse builds the element tree from r. It returns the document element.
func Parse(r io.Reader) (*tree.Node, error) {
	dec := stdxml.NewDecoder(r)

	var root *tree.Node
	var stack []*tree.Node

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}

		switch t := tok.(type) {
		case stdxml.StartElement:
			node := &tree.Node{
				Name:  t.Name.Local,
				Attrs: make(map[string]string, len(t.Attr)),
			}
			for _, a := range t.Attr {
				node.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("parse xml: multiple document elements")
				}
				root = node
			} else {
				stack[len(stack)-1].AppendChild(node)
			}
			stack = append(stack, node)

		case stdxml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("parse xml: unbalanced end element </%s>", t.Name.Local)
			}
			stack = stack[:len(stack)-1]

		case stdxml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].AppendText(string(t))
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("parse xml: no document element")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("parse xml: unclosed element <%s>", stack[len(stack)-1].Name)
	}
	return root, nil
}
