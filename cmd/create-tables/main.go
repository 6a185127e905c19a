package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"lifelog/internal/config"
	"lifelog/internal/sink"

	_ "lifelog/internal/sink/all"
)

// main provisions every table the configuration declares a schema for, then
// exits. Targets without a schema declaration are skipped; their tables are
// expected to exist already.
func main() {
	var (
		cfgPath string
		envFile string
	)
	flag.StringVar(&cfgPath, "config", "configs/sources.json", "run config JSON path")
	flag.StringVar(&envFile, "env-file", ".env", "env file loaded before config expansion")
	flag.Parse()

	if err := config.LoadEnv(envFile); err != nil {
		fatalf("%v", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}
	if issues := config.Validate(cfg); config.HasError(issues) {
		for _, iss := range issues {
			fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		}
		os.Exit(1)
	}

	ctx := context.Background()
	client, err := sink.New(ctx, sink.Config{
		Kind:     cfg.Sink.Kind,
		URL:      cfg.Sink.URL,
		DSN:      cfg.Sink.DSN,
		Username: cfg.Sink.Username,
		Password: cfg.Sink.Password,
		DBName:   cfg.DBName,
		RetryMax: cfg.Defaults.RetryMax,
		Backoff:  time.Duration(cfg.Defaults.BackoffMS) * time.Millisecond,
	})
	if err != nil {
		fatalf("sink: %v", err)
	}
	defer client.Close()

	created := 0
	for _, src := range cfg.Sources {
		for _, t := range src.Targets {
			if len(t.Schema) == 0 {
				continue
			}
			if err := client.EnsureTable(ctx, sinkTable(t)); err != nil {
				fatalf("create table %s: %v", t.Table, err)
			}
			log.Printf("ensured table %s", t.Table)
			created++
		}
	}
	log.Printf("done: %d tables", created)
}

func sinkTable(t config.Target) sink.Table {
	cols := make([]string, 0, len(t.Columns))
	for c := range t.Columns {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return sink.Table{
		Name:       t.Table,
		PrimaryKey: t.PrimaryKey,
		Columns:    cols,
		Schema:     t.Schema,
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
