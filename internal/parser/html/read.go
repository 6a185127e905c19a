// Package html reads HTML activity exports two ways: record-mode extraction
// with selector mappings (the video-platform takeout pages), or conversion to
// the generic element tree for flattening.
package html

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	xhtml "golang.org/x/net/html"

	"lifelog/internal/config"
	"lifelog/internal/parser"
	"lifelog/internal/record"
	"lifelog/internal/tree"
)

// ExtractRecords parses an HTML file and emits one record per element
// matched by recordSelector, with columns extracted per mapping. The record
// order follows DOM order.
//
// Missing selectors are not errors; the column is simply null for that
// record. An invalid mapping regex fails the whole source, since it is a
// configuration mistake rather than a data problem.
func ExtractRecords(path, table, recordSelector string, mappings []config.Mapping) (*record.Set, error) {
	doc, err := load(path)
	if err != nil {
		return nil, err
	}

	res, err := compileMappings(mappings)
	if err != nil {
		return nil, err
	}

	columns := make([]string, len(mappings))
	for i, m := range mappings {
		columns[i] = m.Column
	}
	set := record.NewSet(table, columns)

	doc.Find(recordSelector).Each(func(_ int, sel *goquery.Selection) {
		rec := make(record.Record, len(mappings))
		for i, m := range mappings {
			rec[m.Column] = extractColumn(sel, m, res[i])
		}
		set.Append(rec)
	})

	return set, nil
}

// ParseTree converts an HTML document into the flattener's element tree.
// Only element nodes survive; attributes are carried verbatim and text
// content accumulates per element.
func ParseTree(path string) (*tree.Node, error) {
	doc, err := load(path)
	if err != nil {
		return nil, err
	}

	nodes := doc.Selection.Nodes
	if len(nodes) == 0 {
		return nil, parser.Malformed(path, fmt.Errorf("empty document"))
	}
	return convert(nodes[0]), nil
}

func load(path string) (*goquery.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, parser.Malformed(path, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, parser.Malformed(path, fmt.Errorf("parse html: %w", err))
	}
	return doc, nil
}

func compileMappings(mappings []config.Mapping) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, len(mappings))
	for i, m := range mappings {
		if strings.TrimSpace(m.Match) == "" {
			continue
		}
		re, err := regexp.Compile(m.Match)
		if err != nil {
			return nil, fmt.Errorf("invalid regex for column %q: %w", m.Column, err)
		}
		res[i] = re
	}
	return res, nil
}

// extractColumn resolves one mapping against a record container. It returns
// nil for "no value" so the normalizer sees a proper null.
func extractColumn(root *goquery.Selection, m config.Mapping, re *regexp.Regexp) any {
	one := func(sel *goquery.Selection) string {
		switch m.Extract {
		case "", "text":
			return strings.TrimSpace(sel.Text())
		case "attr":
			if v, ok := sel.Attr(m.Attr); ok {
				return strings.TrimSpace(v)
			}
			return ""
		default:
			return ""
		}
	}

	if m.All {
		var vals []string
		root.Find(m.Selector).Each(func(_ int, sel *goquery.Selection) {
			if v := applyRegex(one(sel), re); v != "" {
				vals = append(vals, v)
			}
		})
		if len(vals) == 0 {
			return nil
		}
		return strings.Join(vals, " | ")
	}

	sel := root.Find(m.Selector).First()
	if sel.Length() == 0 {
		return nil
	}
	if v := applyRegex(one(sel), re); v != "" {
		return v
	}
	return nil
}

// applyRegex filters an extracted value through an optional regex. A match
// with capture groups yields group 1; without groups, the full match. No
// match yields "" so the column is omitted.
func applyRegex(value string, re *regexp.Regexp) string {
	if value == "" || re == nil {
		return value
	}
	sm := re.FindStringSubmatch(value)
	if len(sm) == 0 {
		return ""
	}
	if len(sm) > 1 {
		return sm[1]
	}
	return sm[0]
}

func convert(n *xhtml.Node) *tree.Node {
	node := &tree.Node{
		Name:  n.Data,
		Attrs: make(map[string]string, len(n.Attr)),
	}
	if n.Type == xhtml.DocumentNode {
		node.Name = "#document"
	}
	for _, a := range n.Attr {
		node.Attrs[a.Key] = a.Val
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xhtml.ElementNode:
			node.AppendChild(convert(c))
		case xhtml.TextNode:
			node.AppendText(c.Data)
		}
	}
	return node
}
