package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"lifelog/internal/config"
	"lifelog/internal/inspect"
)

// main samples a source file and prints an inspection report, optionally
// with a draft target declaration ready to paste into a run config.
func main() {
	var (
		path       string
		parserKind string
		table      string
		sheet      string
		comma      string
	)
	flag.StringVar(&path, "path", "", "source file to inspect")
	flag.StringVar(&parserKind, "parser", "csv", "parser to use (csv, xlsx, json, xml, html)")
	flag.StringVar(&table, "table", "", "emit a draft target declaration for this table")
	flag.StringVar(&sheet, "sheet", "", "xlsx sheet name")
	flag.StringVar(&comma, "comma", "", "csv delimiter")
	flag.Parse()

	if path == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect -path export.csv [-parser csv] [-table moods]")
		os.Exit(2)
	}

	opts := config.Options{}
	if sheet != "" {
		opts["sheet"] = sheet
	}
	if comma != "" {
		opts["comma"] = comma
	}

	rep, err := inspect.Inspect(path, parserKind, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}

	if table != "" && len(rep.Columns) > 0 {
		if err := enc.Encode(rep.Target(table)); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			os.Exit(1)
		}
	}
}
