// Package flatten turns hierarchical element trees into flat record sets and
// splits delimiter-packed columns into child record sets.
package flatten

import (
	"strings"

	"lifelog/internal/config"
	"lifelog/internal/record"
	"lifelog/internal/tree"
)

// Flatten walks the tree in document order and emits one record set per
// target, one record per matched element. Element attributes become columns
// verbatim; accumulated element text lands under the "text" column when
// present.
//
// Edges inject parent linkage: for each edge whose Child matches the element,
// the nearest ancestor named Parent contributes its ParentKey attribute value
// under the ForeignKey column. A child with no matching ancestor, or whose
// ancestor lacks the key attribute, gets a null foreign key; the normalizer's
// required-column contract decides whether that record survives.
//
// The returned sets follow target declaration order. Column sets are unified
// across all records of a target, since sparse attributes are common in these
// exports.
func Flatten(root *tree.Node, targets []config.Target, edges []config.Edge) []*record.Set {
	sets := make([]*record.Set, len(targets))
	byElement := make(map[string]*record.Set, len(targets))
	for i, t := range targets {
		if t.Element == "" {
			continue
		}
		sets[i] = record.NewSet(t.Table, nil)
		byElement[t.Element] = sets[i]
	}

	edgesByChild := make(map[string][]config.Edge)
	for _, e := range edges {
		edgesByChild[e.Child] = append(edgesByChild[e.Child], e)
	}

	root.Walk(func(node *tree.Node, ancestors []*tree.Node) {
		set, ok := byElement[node.Name]
		if !ok {
			return
		}

		rec := make(record.Record, len(node.Attrs)+2)
		for k, v := range node.Attrs {
			set.AddColumn(k)
			rec[k] = v
		}
		if node.Text != "" {
			set.AddColumn("text")
			rec["text"] = node.Text
		}

		for _, e := range edgesByChild[node.Name] {
			set.AddColumn(e.ForeignKey)
			rec[e.ForeignKey] = parentKey(ancestors, e)
		}

		set.Append(rec)
	})

	out := make([]*record.Set, 0, len(sets))
	for _, s := range sets {
		if s == nil {
			continue
		}
		s.AlignColumns()
		out = append(out, s)
	}
	return out
}

// parentKey resolves the nearest matching ancestor's key attribute, or nil.
func parentKey(ancestors []*tree.Node, e config.Edge) any {
	for i := len(ancestors) - 1; i >= 0; i-- {
		if ancestors[i].Name != e.Parent {
			continue
		}
		if v, ok := ancestors[i].Attr(e.ParentKey); ok {
			return v
		}
		return nil
	}
	return nil
}

// Explode splits a delimiter-packed column of the parent set into a child
// record set. Each non-empty element becomes one child record carrying the
// parent's parentKey value under the explode's ForeignKey column.
//
// Child records keep parent order, then element order within a parent. The
// packed column stays on the parent record; the parent target's column
// contract drops it during normalization.
func Explode(parent *record.Set, parentKey string, ex config.Explode) *record.Set {
	valueCol := ex.ValueColumn
	if valueCol == "" {
		valueCol = ex.Column
	}

	child := record.NewSet(ex.Table, []string{ex.ForeignKey, valueCol})
	for _, rec := range parent.Records {
		packed, ok := rec[ex.Column].(string)
		if !ok || packed == "" {
			continue
		}
		for _, item := range strings.Split(packed, ex.Separator) {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			child.Append(record.Record{
				ex.ForeignKey: rec[parentKey],
				valueCol:      item,
			})
		}
	}
	return child
}
