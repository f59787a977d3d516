package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/LJTian/hostingnews/internal/collector"
	"github.com/LJTian/hostingnews/internal/config"
	"github.com/LJTian/hostingnews/internal/logging"
	"github.com/LJTian/hostingnews/internal/notify"
	"github.com/LJTian/hostingnews/internal/pipeline"
	"github.com/LJTian/hostingnews/internal/source"
	"github.com/LJTian/hostingnews/internal/storage"
)

// Options 覆盖默认装配，主要给命令行参数和测试使用
type Options struct {
	// DryRun 不推送、不写快照
	DryRun bool
	// Registry 为 nil 时使用内置数据源表
	Registry *source.Registry
	// HTTPClient 用于 feed 抓取和 Slack 推送
	HTTPClient *http.Client
}

// Application 把配置装配成可执行的 Runner
type Application struct {
	Config *config.Config
	Runner *pipeline.Runner
	Logger *slog.Logger

	backend storage.Backend
}

func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if logger == nil {
		logger = logging.New(cfg.LogLevel)
	}

	reg := opts.Registry
	if reg == nil {
		var err error
		if reg, err = source.Default(); err != nil {
			return nil, fmt.Errorf("load source registry: %w", err)
		}
	}
	if err := CheckRules(reg); err != nil {
		return nil, err
	}

	backend, err := storage.Open(cfg.StoreDriver, cfg.StoreTarget)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	fetcher := collector.NewHTTPFetcher(client, cfg.UserAgent, cfg.FetchTimeout)

	var notifier notify.Dispatcher
	if !opts.DryRun {
		notifier = buildNotifier(cfg, client, logger)
	}

	runner, err := pipeline.New(pipeline.Deps{
		Registry: reg,
		Extractors: map[source.Strategy]collector.Extractor{
			source.StructuredMarkup: collector.NewHTMLExtractor(cfg.UserAgent, cfg.FetchTimeout, logger.With("component", "collector.html")),
			source.SyndicationFeed:  collector.NewFeedExtractor(fetcher),
		},
		Snapshots:     storage.NewSnapshots(backend, cfg.SnapshotPrefix),
		Notifier:      notifier,
		History:       backend,
		Logger:        logger,
		Workers:       cfg.Workers,
		NotifyTimeout: cfg.NotifyTimeout,
		StoreTimeout:  cfg.StoreTimeout,
		DryRun:        opts.DryRun,
	})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	logger.Info("application ready",
		"sources", reg.Len(),
		"store", cfg.StoreDriver,
		"notifier", notifier != nil,
		"dry_run", opts.DryRun,
	)
	return &Application{Config: cfg, Runner: runner, Logger: logger, backend: backend}, nil
}

// Close 释放存储连接
func (a *Application) Close() error {
	if a.backend == nil {
		return nil
	}
	return a.backend.Close()
}

// CheckRules 每个 HTML 数据源引用的字段规则都必须存在
func CheckRules(reg *source.Registry) error {
	var errs []error
	for _, def := range reg.All() {
		if def.Strategy != source.StructuredMarkup {
			continue
		}
		if _, ok := collector.LookupRule(def.Rule); !ok {
			errs = append(errs, fmt.Errorf("source %s: unknown field rule %q (known: %s)",
				def.Name, def.Rule, strings.Join(collector.RuleNames(), ", ")))
		}
	}
	return errors.Join(errs...)
}

// buildNotifier Slack 和 Telegram 都未配置时返回 nil，推送被跳过
func buildNotifier(cfg *config.Config, client *http.Client, logger *slog.Logger) notify.Dispatcher {
	var slack, telegram notify.Dispatcher
	if cfg.SlackWebhookURL != "" {
		slack = notify.NewSlack(cfg.SlackWebhookURL, client, cfg.NotifyTimeout)
	}
	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.NotifyTimeout)
		if err != nil {
			logger.Warn("telegram disabled", "error", err)
		} else {
			telegram = tg
		}
	}
	return notify.Combine(slack, telegram)
}
