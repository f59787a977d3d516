package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/LJTian/hostingnews/internal/pipeline"
)

// Job 一轮采集，*pipeline.Runner 实现了它
type Job interface {
	Run(ctx context.Context) (pipeline.Result, error)
}

type Scheduler struct {
	cron   *cron.Cron
	job    Job
	logger *slog.Logger

	// 停止时取消正在执行的一轮
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(spec string, job Job, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cron:   c,
		job:    job,
		logger: logger.With("component", "scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}

	_, err := c.AddFunc(spec, func() { s.runOnce() })
	if err != nil {
		cancel()
		return nil, err
	}

	return s, nil
}

// Start 启动定时任务；startupDelay > 0 时额外在延迟后执行一轮
func (s *Scheduler) Start(startupDelay time.Duration) {
	s.cron.Start()
	if startupDelay <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-time.After(startupDelay):
			s.runOnce()
		case <-s.ctx.Done():
		}
	}()
}

// Stop 停止调度并等待正在执行的一轮结束
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// RunOnce 对外暴露的单次执行入口，方便手动触发采集
func (s *Scheduler) RunOnce() (pipeline.Result, error) {
	return s.runOnce()
}

func (s *Scheduler) runOnce() (pipeline.Result, error) {
	s.logger.Info("start collect job")

	res, err := s.job.Run(s.ctx)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		// 上一轮还没跑完，跳过本次触发
		s.logger.Warn("previous run still in progress, skip")
		return res, err
	case err != nil:
		s.logger.Error("collect job finished with errors", "run_id", res.RunID, "status_code", res.StatusCode, "error", err)
	default:
		s.logger.Info("collect job done", "run_id", res.RunID, "updates", res.Body.TotalUpdates(), "failed", len(res.Body.Failed()))
	}
	return res, err
}
