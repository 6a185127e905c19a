// Package inspect samples a source file and proposes a target declaration:
// column names, inferred logical types, and element counts for hierarchical
// sources. Inference is best-effort and never fails the inspection; an
// undecidable column is simply "string".
package inspect

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"lifelog/internal/config"
	"lifelog/internal/parser/csv"
	"lifelog/internal/parser/html"
	"lifelog/internal/parser/json"
	"lifelog/internal/parser/xlsx"
	"lifelog/internal/parser/xml"
	"lifelog/internal/record"
	"lifelog/internal/tree"
)

// Column is one inferred column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`

	// NullRate is the fraction of sampled records with a null or blank value.
	NullRate float64 `json:"null_rate"`
}

// Element summarizes one element kind of a hierarchical source.
type Element struct {
	Name       string   `json:"name"`
	Count      int      `json:"count"`
	Attributes []string `json:"attributes"`
}

// Report is the inspection outcome. Tabular sources fill Columns and
// Records; hierarchical sources fill Elements.
type Report struct {
	Path    string `json:"path"`
	Parser  string `json:"parser"`
	Records int    `json:"records,omitempty"`

	Columns  []Column  `json:"columns,omitempty"`
	Elements []Element `json:"elements,omitempty"`
}

// maxSample bounds how many records feed type inference.
const maxSample = 2000

// Inspect reads a source with the named parser and infers its shape.
func Inspect(path, parserKind string, opts config.Options) (Report, error) {
	rep := Report{Path: path, Parser: parserKind}

	switch parserKind {
	case "csv", "xlsx", "json":
		var (
			set *record.Set
			err error
		)
		switch parserKind {
		case "csv":
			set, err = csv.ReadRecords(path, "sample", opts)
		case "xlsx":
			set, err = xlsx.ReadRecords(path, "sample", opts)
		case "json":
			set, err = json.ReadRecords(path, "sample", opts)
		}
		if err != nil {
			return rep, err
		}
		rep.Records = set.Len()
		rep.Columns = inferColumns(set)
		return rep, nil

	case "xml":
		root, err := xml.ParseFile(path)
		if err != nil {
			return rep, err
		}
		rep.Elements = surveyElements(root)
		return rep, nil

	case "html":
		root, err := html.ParseTree(path)
		if err != nil {
			return rep, err
		}
		rep.Elements = surveyElements(root)
		return rep, nil

	default:
		return rep, fmt.Errorf("unknown parser %q", parserKind)
	}
}

// Target turns a tabular report into a draft target declaration. The first
// column stands in as the primary key; the operator is expected to correct
// it before running.
func (r Report) Target(table string) config.Target {
	t := config.Target{Table: table, Columns: map[string]string{}}
	for i, c := range r.Columns {
		t.Columns[c.Name] = c.Type
		if i == 0 {
			t.PrimaryKey = c.Name
		}
	}
	return t
}

// inferColumns votes a logical type per column: a type wins only when every
// non-null sampled value agrees with it. Anything contested is "string".
func inferColumns(set *record.Set) []Column {
	out := make([]Column, 0, len(set.Columns))

	limit := set.Len()
	if limit > maxSample {
		limit = maxSample
	}

	for _, name := range set.Columns {
		seen := false
		nulls := 0
		allInt, allFloat, allBool := true, true, true
		allDate, allDatetime := true, true

		for _, rec := range set.Records[:limit] {
			v := rec[name]
			if v == nil {
				nulls++
				continue
			}
			s := fmt.Sprint(v)
			if strings.TrimSpace(s) == "" {
				nulls++
				continue
			}
			seen = true

			if !isInt(s) {
				allInt = false
			}
			if !isFloat(s) {
				allFloat = false
			}
			if !isBool(s) {
				allBool = false
			}
			if !isDate(s) {
				allDate = false
			}
			if !isDatetime(s) {
				allDatetime = false
			}
		}

		typ := "string"
		switch {
		case !seen:
			typ = "string"
		case allBool:
			typ = "bool"
		case allInt:
			typ = "int"
		case allFloat:
			typ = "float"
		case allDate:
			typ = "date"
		case allDatetime:
			typ = "datetime"
		}

		rate := 0.0
		if limit > 0 {
			rate = float64(nulls) / float64(limit)
		}
		out = append(out, Column{Name: name, Type: typ, NullRate: rate})
	}
	return out
}

func isInt(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func isFloat(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func isBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "yes", "no":
		return true
	}
	return false
}

func isDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func isDatetime(s string) bool {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02 15:04:05 -0700"} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// surveyElements counts element kinds and collects the union of attribute
// names per kind, in document order of first appearance.
func surveyElements(root *tree.Node) []Element {
	counts := map[string]int{}
	attrs := map[string]map[string]bool{}
	var order []string

	root.Walk(func(node *tree.Node, _ []*tree.Node) {
		if counts[node.Name] == 0 {
			order = append(order, node.Name)
			attrs[node.Name] = map[string]bool{}
		}
		counts[node.Name]++
		for k := range node.Attrs {
			attrs[node.Name][k] = true
		}
	})

	out := make([]Element, 0, len(order))
	for _, name := range order {
		names := make([]string, 0, len(attrs[name]))
		for k := range attrs[name] {
			names = append(names, k)
		}
		sort.Strings(names)
		out = append(out, Element{Name: name, Count: counts[name], Attributes: names})
	}
	return out
}
