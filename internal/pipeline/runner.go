package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/LJTian/hostingnews/internal/collector"
	"github.com/LJTian/hostingnews/internal/notify"
	"github.com/LJTian/hostingnews/internal/source"
	"github.com/LJTian/hostingnews/internal/storage"
)

var (
	// ErrRunInProgress 上一轮尚未结束
	ErrRunInProgress = errors.New("run already in progress")
	// ErrUnknownSource 指定的数据源不在注册表中
	ErrUnknownSource = errors.New("unknown source")
)

const recentRunsMax = 20

// Deps Runner 的全部依赖，由调用方显式注入
type Deps struct {
	Registry   *source.Registry
	Extractors map[source.Strategy]collector.Extractor
	Snapshots  storage.SnapshotStore
	// Notifier 为 nil 表示未配置推送，只记录日志
	Notifier notify.Dispatcher
	// History 可选，为 nil 时只在内存里保留最近几次结果
	History storage.HistoryStore
	Logger  *slog.Logger

	Workers       int
	NotifyTimeout time.Duration
	StoreTimeout  time.Duration

	// DryRun 只抓取和比对，不推送也不写快照
	DryRun bool
}

// Runner 编排所有数据源的一轮执行：抓取 -> 比对 -> 推送 -> 写快照
type Runner struct {
	deps   Deps
	logger *slog.Logger

	running atomic.Bool

	mu     sync.RWMutex
	recent []Result

	now func() time.Time
}

func New(d Deps) (*Runner, error) {
	if d.Registry == nil {
		return nil, errors.New("pipeline: registry is required")
	}
	if d.Snapshots == nil {
		return nil, errors.New("pipeline: snapshot store is required")
	}
	if len(d.Extractors) == 0 {
		return nil, errors.New("pipeline: no extractors configured")
	}
	if d.Workers < 1 {
		d.Workers = 1
	}
	if d.NotifyTimeout <= 0 {
		d.NotifyTimeout = 10 * time.Second
	}
	if d.StoreTimeout <= 0 {
		d.StoreTimeout = 5 * time.Second
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Runner{
		deps:   d,
		logger: d.Logger.With("component", "pipeline"),
		now:    time.Now,
	}, nil
}

// Run 执行注册表中的全部数据源
func (r *Runner) Run(ctx context.Context) (Result, error) {
	return r.RunSources(ctx)
}

// RunSources 只执行指定的数据源，names 为空时执行全部。
// 返回的 error 只包含推送失败；抓取和解析失败只记录在报告里。
func (r *Runner) RunSources(ctx context.Context, names ...string) (Result, error) {
	defs, err := r.selectSources(names)
	if err != nil {
		return Result{}, err
	}

	if !r.running.CompareAndSwap(false, true) {
		return Result{}, ErrRunInProgress
	}
	defer r.running.Store(false)

	res := Result{
		RunID:     uuid.NewString(),
		StartedAt: r.now(),
	}
	log := r.logger.With("run_id", res.RunID)
	log.Info("run start", "sources", len(defs), "workers", r.deps.Workers, "dry_run", r.deps.DryRun)

	// 每个任务只写自己的下标，汇总在 Wait 之后进行
	outcomes := make([]outcome, len(defs))
	var g errgroup.Group
	g.SetLimit(r.deps.Workers)
	for i, def := range defs {
		i, def := i, def
		g.Go(func() error {
			outcomes[i] = r.runSource(ctx, log.With("source", def.Name), def)
			return nil
		})
	}
	_ = g.Wait()

	res.Body = make(Report, len(defs))
	var deliveryErrs []error
	for i, def := range defs {
		res.Body[def.Name] = outcomes[i].report
		if outcomes[i].err != nil && errors.Is(outcomes[i].err, collector.ErrDelivery) {
			deliveryErrs = append(deliveryErrs, outcomes[i].err)
		}
	}
	res.StatusCode = http.StatusOK
	if len(deliveryErrs) > 0 {
		res.StatusCode = http.StatusInternalServerError
	}
	res.FinishedAt = r.now()

	r.remember(res)
	r.saveHistory(log, res)

	log.Info("run end",
		"status_code", res.StatusCode,
		"updates", res.Body.TotalUpdates(),
		"failed", len(res.Body.Failed()),
		"elapsed", res.Duration().String(),
	)
	return res, errors.Join(deliveryErrs...)
}

// Latest 最近一次执行结果
func (r *Runner) Latest() (Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.recent) == 0 {
		return Result{}, false
	}
	return r.recent[len(r.recent)-1], true
}

// Running 是否有一轮正在执行
func (r *Runner) Running() bool {
	return r.running.Load()
}

// History 按开始时间倒序返回执行记录；没有持久化存储时使用内存中的最近记录
func (r *Runner) History(ctx context.Context, limit int) ([]storage.RunRecord, error) {
	if r.deps.History != nil {
		return r.deps.History.ListRuns(ctx, limit)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.recent) {
		limit = len(r.recent)
	}
	out := make([]storage.RunRecord, 0, limit)
	for i := len(r.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, recordOf(r.recent[i]))
	}
	return out, nil
}

// Registry 当前使用的注册表
func (r *Runner) Registry() *source.Registry {
	return r.deps.Registry
}

// Snapshot 读取某个数据源已保存的快照，不存在时返回空列表
func (r *Runner) Snapshot(ctx context.Context, name string) ([]collector.Item, error) {
	def, ok := r.deps.Registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	ctx, cancel := context.WithTimeout(ctx, r.deps.StoreTimeout)
	defer cancel()
	items, err := r.deps.Snapshots.Load(ctx, def.SnapshotKey)
	if errors.Is(err, storage.ErrNotFound) {
		return []collector.Item{}, nil
	}
	return items, err
}

func (r *Runner) selectSources(names []string) ([]source.Definition, error) {
	if len(names) == 0 {
		return r.deps.Registry.All(), nil
	}
	defs := make([]source.Definition, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		def, ok := r.deps.Registry.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (r *Runner) remember(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recent = append(r.recent, res)
	if len(r.recent) > recentRunsMax {
		r.recent = r.recent[len(r.recent)-recentRunsMax:]
	}
}

func (r *Runner) saveHistory(log *slog.Logger, res Result) {
	if r.deps.History == nil || r.deps.DryRun {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.deps.StoreTimeout)
	defer cancel()
	if err := r.deps.History.SaveRun(ctx, recordOf(res)); err != nil {
		log.Warn("save run history failed", "error", err)
	}
}

func recordOf(res Result) storage.RunRecord {
	return storage.RunRecord{
		ID:         res.RunID,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		StatusCode: res.StatusCode,
		Report:     datatypes.JSON(res.reportJSON()),
	}
}
