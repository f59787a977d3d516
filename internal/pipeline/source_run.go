package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/LJTian/hostingnews/internal/collector"
	"github.com/LJTian/hostingnews/internal/processor"
	"github.com/LJTian/hostingnews/internal/source"
	"github.com/LJTian/hostingnews/internal/storage"
)

// outcome 单个数据源任务的结果，只由该任务写入
type outcome struct {
	report SourceReport
	err    error
}

func failed(update int, err error) outcome {
	return outcome{
		report: SourceReport{Update: update, Status: StatusFailed, Error: err.Error()},
		err:    err,
	}
}

// runSource 单个数据源：抽取 -> 读快照 -> 比对 -> 推送 -> 覆盖快照
func (r *Runner) runSource(ctx context.Context, log *slog.Logger, def source.Definition) outcome {
	log.Info("parser start", "strategy", def.Strategy)

	ex, ok := r.deps.Extractors[def.Strategy]
	if !ok {
		err := collector.NewError(collector.KindExtract, def.Name, fmt.Errorf("no extractor for strategy %q", def.Strategy))
		log.Error("parser failed", "error", err)
		return failed(0, err)
	}

	fresh, err := ex.Extract(ctx, def)
	if err != nil {
		log.Error("parser failed", "kind", collector.KindOf(err), "error", err)
		return failed(0, err)
	}

	prior, err := r.loadPrior(ctx, def)
	if err != nil {
		log.Error("load snapshot failed", "key", def.SnapshotKey, "error", err)
		return failed(0, err)
	}

	added := processor.NewItems(fresh, prior)
	for _, it := range added {
		log.Info("news update", "date", it.Date, "url", it.URL, "title", it.Title)
	}

	if r.deps.DryRun {
		log.Info("parser end", "update", len(added), "fetched", len(fresh), "dry_run", true)
		return outcome{report: SourceReport{Update: len(added), Status: StatusCompleted, NewItems: added}}
	}

	switch {
	case len(added) == 0:
		log.Debug("skip notification", "reason", "no new items")
	case r.deps.Notifier == nil:
		log.Info("skip notification", "reason", "notifier not configured", "update", len(added))
	default:
		nctx, cancel := context.WithTimeout(ctx, r.deps.NotifyTimeout)
		err := r.deps.Notifier.Dispatch(nctx, def.Name, added)
		cancel()
		if err != nil {
			// 推送失败不写快照，下一轮会重新检测到这些条目
			log.Error("notification failed", "update", len(added), "error", err)
			return failed(len(added), err)
		}
	}

	if len(fresh) == 0 && len(prior) > 0 {
		log.Warn("empty fetch overwrites snapshot", "key", def.SnapshotKey, "prior", len(prior))
	}
	sctx, cancel := context.WithTimeout(ctx, r.deps.StoreTimeout)
	err = r.deps.Snapshots.Save(sctx, def.SnapshotKey, fresh)
	cancel()
	if err != nil {
		err = collector.NewError(collector.KindStore, def.Name, err)
		log.Error("save snapshot failed", "key", def.SnapshotKey, "error", err)
		return failed(len(added), err)
	}

	log.Info("parser end", "update", len(added), "fetched", len(fresh))
	return outcome{report: SourceReport{Update: len(added), Status: StatusCompleted}}
}

// loadPrior 快照不存在视为空
func (r *Runner) loadPrior(ctx context.Context, def source.Definition) ([]collector.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, r.deps.StoreTimeout)
	defer cancel()

	prior, err := r.deps.Snapshots.Load(ctx, def.SnapshotKey)
	if errors.Is(err, storage.ErrNotFound) {
		return []collector.Item{}, nil
	}
	if err != nil {
		return nil, collector.NewError(collector.KindStore, def.Name, err)
	}
	return prior, nil
}
