package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/LJTian/hostingnews/internal/app"
	"github.com/LJTian/hostingnews/internal/config"
	"github.com/LJTian/hostingnews/internal/logging"
)

// 一个仅执行一次采集任务的命令行入口：适合手动触发或由外部定时器调用
func main() {
	var (
		sources = flag.String("source", "", "comma separated source names, empty runs all")
		dryRun  = flag.Bool("dry-run", false, "fetch and diff only, no notification and no snapshot write")
		asJSON  = flag.Bool("json", false, "print the run result as JSON instead of a table")
	)
	flag.Parse()

	cfg := config.Load()
	logger := logging.NewWithWriter(os.Stderr, cfg.LogLevel)

	a, err := app.New(cfg, logger, app.Options{DryRun: *dryRun})
	if err != nil {
		logger.Error("init application failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, runErr := a.Runner.RunSources(ctx, splitNames(*sources)...)
	if runErr != nil && res.RunID == "" {
		logger.Error("run failed", "error", runErr)
		os.Exit(1)
	}

	if *asJSON {
		if err := writeJSON(os.Stdout, res, *dryRun); err != nil {
			logger.Error("write json failed", "error", err)
		}
	} else {
		writeSummary(os.Stdout, res, *dryRun)
	}

	if runErr != nil {
		logger.Error("run finished with delivery errors", "error", runErr)
		// defer 在 os.Exit 时不会执行
		_ = a.Close()
		os.Exit(1)
	}
}

func splitNames(raw string) []string {
	var names []string
	for _, n := range strings.Split(raw, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}
