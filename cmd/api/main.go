package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LJTian/hostingnews/internal/api"
	"github.com/LJTian/hostingnews/internal/app"
	"github.com/LJTian/hostingnews/internal/config"
	"github.com/LJTian/hostingnews/internal/logging"
	"github.com/LJTian/hostingnews/internal/scheduler"
)

// 延迟执行首轮采集，避免启动时与健康检查争抢资源
const startupDelay = 15 * time.Second

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	a, err := app.New(cfg, logger, app.Options{})
	if err != nil {
		logger.Error("init application failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	s, err := scheduler.New(cfg.CronSpec, a.Runner, logger)
	if err != nil {
		logger.Error("init scheduler failed", "cron", cfg.CronSpec, "error", err)
		os.Exit(1)
	}
	delay := time.Duration(0)
	if cfg.RunOnStart {
		delay = startupDelay
	}
	s.Start(delay)
	defer s.Stop()

	// API
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}
	api.NewServer(a.Runner).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", "addr", srv.Addr, "cron", cfg.CronSpec)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server exit", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}
}
