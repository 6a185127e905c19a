package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"lifelog/internal/config"
	"lifelog/internal/metrics"
	"lifelog/internal/metrics/datadog"
	"lifelog/internal/pipeline"
	"lifelog/internal/sink"

	// Register all sink backends with the factory. Config selects which one
	// to use, but the binary carries support for all of them.
	_ "lifelog/internal/sink/all"
)

// main loads the run configuration, optionally initializes a metrics
// backend, and executes the pipeline. Exit code is 0 only when every source
// finished DONE.
func main() {
	var (
		cfgPath        string
		envFile        string
		metricsBackend string
		validate       bool
		timeout        time.Duration
	)

	flag.StringVar(&cfgPath, "config", "configs/sources.json", "run config JSON path")
	flag.StringVar(&envFile, "env-file", ".env", "env file loaded before config expansion")
	flag.StringVar(&metricsBackend, "metrics-backend", "", "metrics backend (datadog, none)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.DurationVar(&timeout, "timeout", 0, "overall run timeout (0 = none)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	if err := config.LoadEnv(envFile); err != nil {
		fatalf("%v", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasError(issues) {
		log.Printf("configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	// Decide metrics backend: flag, then env, then disabled.
	backendName := metricsBackend
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "datadog":
		jobName := cfg.Job
		if jobName == "" {
			jobName = "lifelog"
		}
		extraTags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))

		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName: jobName,
			Tags:    extraTags,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			if *verbose {
				log.Printf("metrics: backend=%v job_name=%v tags=%v", backendName, jobName, extraTags)
			}
			metrics.SetBackend(b)
			// Close stops the periodic flush loop and performs the final
			// flush; skipping it loses the tail of a short run.
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}

	case "", "none":
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

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

	start := time.Now()
	sums := pipeline.New(cfg, client, log.Default()).Run(ctx)

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}

	if pipeline.Failed(sums) {
		os.Exit(1)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
