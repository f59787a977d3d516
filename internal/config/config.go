package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// configPathEnv 指向可选的 YAML 配置文件，环境变量优先于文件
const configPathEnv = "HOSTNEWS_CONFIG"

type Config struct {
	AppPort  string
	CronSpec string

	// StoreDriver: redis | postgres | sqlite | memory
	StoreDriver string
	// StoreTarget redis 地址 / postgres DSN / sqlite 文件路径
	StoreTarget    string
	SnapshotPrefix string

	SlackWebhookURL  string
	TelegramBotToken string
	TelegramChatID   int64

	Workers       int
	FetchTimeout  time.Duration
	NotifyTimeout time.Duration
	StoreTimeout  time.Duration
	UserAgent     string

	LogLevel   string
	RunOnStart bool

	// 同时配置时 API 启用 Basic Auth
	BasicAuthUser string
	BasicAuthPass string
}

// fileConfig YAML 文件的结构，时长用字符串表示，例如 "20s"
type fileConfig struct {
	AppPort  string `yaml:"appPort"`
	CronSpec string `yaml:"cronSpec"`
	Store    struct {
		Driver string `yaml:"driver"`
		Target string `yaml:"target"`
		Prefix string `yaml:"prefix"`
	} `yaml:"store"`
	Notify struct {
		SlackWebhookURL  string `yaml:"slackWebhookUrl"`
		TelegramBotToken string `yaml:"telegramBotToken"`
		TelegramChatID   int64  `yaml:"telegramChatId"`
	} `yaml:"notify"`
	Workers       int    `yaml:"workers"`
	FetchTimeout  string `yaml:"fetchTimeout"`
	NotifyTimeout string `yaml:"notifyTimeout"`
	StoreTimeout  string `yaml:"storeTimeout"`
	UserAgent     string `yaml:"userAgent"`
	LogLevel      string `yaml:"logLevel"`
	RunOnStart    *bool  `yaml:"runOnStart"`
}

func defaults() *Config {
	return &Config{
		AppPort:       "9000",
		CronSpec:      "*/30 * * * *",
		StoreDriver:   "redis",
		StoreTarget:   "localhost:6379",
		Workers:       4,
		FetchTimeout:  20 * time.Second,
		NotifyTimeout: 10 * time.Second,
		StoreTimeout:  5 * time.Second,
		UserAgent:     "HostingNewsBot/1.0",
		LogLevel:      "info",
	}
}

// Load 默认值 -> YAML 文件（HOSTNEWS_CONFIG）-> 环境变量
func Load() *Config {
	cfg := defaults()

	if path := os.Getenv(configPathEnv); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			slog.Warn("config file ignored", "path", path, "error", err)
		}
	}
	cfg.applyEnv()

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	slog.Debug("config loaded", "port", cfg.AppPort, "cron", cfg.CronSpec, "store", cfg.StoreDriver, "workers", cfg.Workers)
	return cfg
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	setString(&c.AppPort, fc.AppPort)
	setString(&c.CronSpec, fc.CronSpec)
	setString(&c.StoreDriver, fc.Store.Driver)
	setString(&c.StoreTarget, fc.Store.Target)
	setString(&c.SnapshotPrefix, fc.Store.Prefix)
	setString(&c.SlackWebhookURL, fc.Notify.SlackWebhookURL)
	setString(&c.TelegramBotToken, fc.Notify.TelegramBotToken)
	setString(&c.UserAgent, fc.UserAgent)
	setString(&c.LogLevel, fc.LogLevel)
	if fc.Notify.TelegramChatID != 0 {
		c.TelegramChatID = fc.Notify.TelegramChatID
	}
	if fc.Workers > 0 {
		c.Workers = fc.Workers
	}
	if fc.RunOnStart != nil {
		c.RunOnStart = *fc.RunOnStart
	}

	for _, d := range []struct {
		dst *time.Duration
		raw string
	}{
		{&c.FetchTimeout, fc.FetchTimeout},
		{&c.NotifyTimeout, fc.NotifyTimeout},
		{&c.StoreTimeout, fc.StoreTimeout},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		*d.dst = v
	}
	return nil
}

func (c *Config) applyEnv() {
	c.AppPort = getEnv("APP_PORT", c.AppPort)
	c.CronSpec = getEnv("CRON_SPEC", c.CronSpec)
	c.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", c.StoreDriver))
	c.StoreTarget = getEnv("STORE_TARGET", c.StoreTarget)
	c.SnapshotPrefix = getEnv("SNAPSHOT_PREFIX", c.SnapshotPrefix)
	c.SlackWebhookURL = getEnv("SLACK_WEBHOOK_URL", c.SlackWebhookURL)
	c.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramBotToken)
	c.TelegramChatID = getEnvAsInt64("TELEGRAM_CHAT_ID", c.TelegramChatID)
	c.Workers = getEnvAsInt("WORKERS", c.Workers)
	c.FetchTimeout = getEnvAsDuration("FETCH_TIMEOUT", c.FetchTimeout)
	c.NotifyTimeout = getEnvAsDuration("NOTIFY_TIMEOUT", c.NotifyTimeout)
	c.StoreTimeout = getEnvAsDuration("STORE_TIMEOUT", c.StoreTimeout)
	c.UserAgent = getEnv("USER_AGENT", c.UserAgent)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.RunOnStart = getEnvAsBool("RUN_ON_START", c.RunOnStart)
	c.BasicAuthUser = getEnv("APP_BASIC_USER", c.BasicAuthUser)
	c.BasicAuthPass = getEnv("APP_BASIC_PASS", c.BasicAuthPass)
}

// TelegramEnabled token 和 chat id 都配置时才启用
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvAsInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
