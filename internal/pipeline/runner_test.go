package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/LJTian/hostingnews/internal/collector"
	"github.com/LJTian/hostingnews/internal/logging"
	"github.com/LJTian/hostingnews/internal/source"
	"github.com/LJTian/hostingnews/internal/storage"
)

type stubExtractor struct {
	mu    sync.Mutex
	items map[string][]collector.Item
	errs  map[string]error
	calls map[string]int
}

func newStubExtractor() *stubExtractor {
	return &stubExtractor{
		items: map[string][]collector.Item{},
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

func (s *stubExtractor) set(name string, items ...collector.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[name] = items
}

func (s *stubExtractor) Extract(_ context.Context, def source.Definition) ([]collector.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[def.Name]++
	if err := s.errs[def.Name]; err != nil {
		return nil, err
	}
	return append([]collector.Item(nil), s.items[def.Name]...), nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	batches map[string][]collector.Item
	fail    map[string]bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{batches: map[string][]collector.Item{}, fail: map[string]bool{}}
}

func (n *recordingNotifier) Dispatch(_ context.Context, name string, items []collector.Item) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[name] {
		return collector.NewError(collector.KindDelivery, name, errors.New("slack status 500"))
	}
	n.batches[name] = append(n.batches[name], items...)
	return nil
}

func testRegistry(t *testing.T) *source.Registry {
	t.Helper()
	reg, err := source.New([]source.Definition{
		{Name: "conoha_wing", Strategy: source.StructuredMarkup, FetchURL: "https://www.conoha.jp/wing/news/", BaseURL: "https://www.conoha.jp", Selector: "li.listNews_item", Rule: "conoha", SnapshotKey: "conoha_wing_news.json"},
		{Name: "xserver", Strategy: source.StructuredMarkup, FetchURL: "https://www.xserver.ne.jp/support/news.php", Selector: "dl", Rule: "xserver", SnapshotKey: "xserver_news.json"},
		{Name: "mixhost_news", Strategy: source.SyndicationFeed, FetchURL: "https://mixhost.jp/news/feed", TagFilter: []string{"お知らせ"}, SnapshotKey: "mixhost_news.json"},
	})
	if err != nil {
		t.Fatalf("source.New error: %v", err)
	}
	return reg
}

type fixture struct {
	runner    *Runner
	extractor *stubExtractor
	notifier  *recordingNotifier
	mem       *storage.MemoryStore
	snaps     *storage.Snapshots
}

func newFixture(t *testing.T, withNotifier bool) *fixture {
	t.Helper()
	f := &fixture{
		extractor: newStubExtractor(),
		notifier:  newRecordingNotifier(),
		mem:       storage.NewMemoryStore(),
	}
	f.snaps = storage.NewSnapshots(f.mem, "")

	deps := Deps{
		Registry: testRegistry(t),
		Extractors: map[source.Strategy]collector.Extractor{
			source.StructuredMarkup: f.extractor,
			source.SyndicationFeed:  f.extractor,
		},
		Snapshots: f.snaps,
		History:   f.mem,
		Logger:    logging.Discard(),
		Workers:   2,
	}
	if withNotifier {
		deps.Notifier = f.notifier
	}
	r, err := New(deps)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	f.runner = r
	return f
}

func items(prefix string, n int) []collector.Item {
	out := make([]collector.Item, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, collector.Item{
			Date:  fmt.Sprintf("2024.05.%02d", i+1),
			Title: fmt.Sprintf("%s %d", prefix, i),
			URL:   fmt.Sprintf("https://example.jp/%s/%d", prefix, i),
		})
	}
	return out
}

func (f *fixture) snapshot(t *testing.T, key string) []collector.Item {
	t.Helper()
	got, err := f.snaps.Load(context.Background(), key)
	if err != nil {
		t.Fatalf("Load(%s) error: %v", key, err)
	}
	return got
}

func TestRunFirstRun(t *testing.T) {
	f := newFixture(t, true)
	fresh := items("conoha", 3)
	f.extractor.set("conoha_wing", fresh...)

	res, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.StatusCode != http.StatusOK || res.RunID == "" {
		t.Fatalf("unexpected result header: %+v", res)
	}
	if got := res.Body["conoha_wing"]; got.Update != 3 || got.Status != StatusCompleted {
		t.Fatalf("conoha_wing report = %+v", got)
	}
	if len(res.Body) != 3 {
		t.Fatalf("report should cover every source, got %v", res.Body.Names())
	}
	if len(f.notifier.batches["conoha_wing"]) != 3 {
		t.Fatalf("expected 3 notified items, got %d", len(f.notifier.batches["conoha_wing"]))
	}
	if got := f.snapshot(t, "conoha_wing_news.json"); len(got) != 3 || got[2] != fresh[2] {
		t.Fatalf("snapshot = %+v", got)
	}
	// 没有新条目的数据源不推送，但快照仍然写入
	if _, ok := f.notifier.batches["xserver"]; ok {
		t.Fatalf("xserver should not be notified")
	}
	if got := f.snapshot(t, "xserver_news.json"); len(got) != 0 {
		t.Fatalf("xserver snapshot should be empty, got %+v", got)
	}
}

func TestRunNoChange(t *testing.T) {
	f := newFixture(t, true)
	f.extractor.set("conoha_wing", items("conoha", 2)...)

	if _, err := f.runner.Run(context.Background()); err != nil {
		t.Fatalf("first Run error: %v", err)
	}
	f.notifier.batches = map[string][]collector.Item{}

	res, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run error: %v", err)
	}
	if res.Body["conoha_wing"].Update != 0 {
		t.Fatalf("expected 0 updates, got %+v", res.Body["conoha_wing"])
	}
	if len(f.notifier.batches) != 0 {
		t.Fatalf("no notification expected, got %v", f.notifier.batches)
	}
	if got := f.snapshot(t, "conoha_wing_news.json"); len(got) != 2 {
		t.Fatalf("snapshot should be re-persisted unchanged, got %+v", got)
	}
}

func TestRunOnlyNewItemsAreNotified(t *testing.T) {
	f := newFixture(t, true)
	old := items("conoha", 2)
	f.extractor.set("conoha_wing", old...)
	if _, err := f.runner.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	f.notifier.batches = map[string][]collector.Item{}

	added := collector.Item{Date: "2024.06.01", Title: "新サービス", URL: "https://example.jp/new"}
	f.extractor.set("conoha_wing", added, old[0], old[1])

	res, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Body["conoha_wing"].Update != 1 {
		t.Fatalf("expected 1 update, got %+v", res.Body["conoha_wing"])
	}
	batch := f.notifier.batches["conoha_wing"]
	if len(batch) != 1 || batch[0] != added {
		t.Fatalf("unexpected batch: %+v", batch)
	}
}

func TestRunPartialSourceFailure(t *testing.T) {
	f := newFixture(t, true)
	prior := items("conoha", 1)
	if err := f.snaps.Save(context.Background(), "conoha_wing_news.json", prior); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
	f.extractor.errs["conoha_wing"] = collector.NewError(collector.KindFetch, "conoha_wing", errors.New("connection refused"))
	f.extractor.set("mixhost_news", items("mixhost", 2)...)

	res, err := f.runner.Run(context.Background())
	// 抓取失败不向调用方返回错误
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want 200", res.StatusCode)
	}
	a := res.Body["conoha_wing"]
	if a.Status != StatusFailed || a.Update != 0 || a.Error == "" {
		t.Fatalf("conoha_wing should be failed: %+v", a)
	}
	b := res.Body["mixhost_news"]
	if b.Status != StatusCompleted || b.Update != 2 {
		t.Fatalf("mixhost_news should complete with 2 updates: %+v", b)
	}
	// 失败数据源的快照保持原样
	if got := f.snapshot(t, "conoha_wing_news.json"); len(got) != 1 || got[0] != prior[0] {
		t.Fatalf("failed source snapshot changed: %+v", got)
	}
	if failed := res.Body.Failed(); len(failed) != 1 || failed[0] != "conoha_wing" {
		t.Fatalf("Failed() = %v", failed)
	}
}

func TestRunDeliveryFailureKeepsSnapshot(t *testing.T) {
	f := newFixture(t, true)
	f.notifier.fail["conoha_wing"] = true
	f.extractor.set("conoha_wing", items("conoha", 2)...)
	f.extractor.set("xserver", items("xserver", 1)...)

	res, err := f.runner.Run(context.Background())
	if !errors.Is(err, collector.ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("StatusCode = %d, want 500", res.StatusCode)
	}
	if got := res.Body["conoha_wing"]; got.Status != StatusFailed || got.Update != 2 {
		t.Fatalf("conoha_wing report = %+v", got)
	}
	if _, err := f.snaps.Load(context.Background(), "conoha_wing_news.json"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("snapshot must not be written after delivery failure, got %v", err)
	}
	// 其它数据源照常完成
	if got := res.Body["xserver"]; got.Status != StatusCompleted || got.Update != 1 {
		t.Fatalf("xserver report = %+v", got)
	}
}

func TestRunEmptyFetchWipesSnapshot(t *testing.T) {
	f := newFixture(t, true)
	if err := f.snaps.Save(context.Background(), "xserver_news.json", items("xserver", 3)); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	res, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Body["xserver"].Update != 0 || res.Body["xserver"].Status != StatusCompleted {
		t.Fatalf("xserver report = %+v", res.Body["xserver"])
	}
	if got := f.snapshot(t, "xserver_news.json"); len(got) != 0 {
		t.Fatalf("empty fetch should overwrite the snapshot, got %+v", got)
	}
}

func TestRunWithoutNotifierStillPersists(t *testing.T) {
	f := newFixture(t, false)
	f.extractor.set("conoha_wing", items("conoha", 2)...)

	res, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Body["conoha_wing"].Update != 2 {
		t.Fatalf("report = %+v", res.Body["conoha_wing"])
	}
	if got := f.snapshot(t, "conoha_wing_news.json"); len(got) != 2 {
		t.Fatalf("snapshot = %+v", got)
	}
}

func TestRunSourcesSubsetAndUnknown(t *testing.T) {
	f := newFixture(t, true)
	res, err := f.runner.RunSources(context.Background(), "xserver", "xserver")
	if err != nil {
		t.Fatalf("RunSources error: %v", err)
	}
	if len(res.Body) != 1 {
		t.Fatalf("expected report for 1 source, got %v", res.Body.Names())
	}
	if f.extractor.calls["conoha_wing"] != 0 || f.extractor.calls["xserver"] != 1 {
		t.Fatalf("unexpected extractor calls: %v", f.extractor.calls)
	}

	if _, err := f.runner.RunSources(context.Background(), "nope"); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("expected ErrUnknownSource, got %v", err)
	}
}

func TestRunDryRun(t *testing.T) {
	f := newFixture(t, true)
	f.runner.deps.DryRun = true
	f.extractor.set("conoha_wing", items("conoha", 2)...)

	res, err := f.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if got := res.Body["conoha_wing"]; got.Update != 2 || len(got.NewItems) != 2 {
		t.Fatalf("dry run report = %+v", got)
	}
	if len(f.notifier.batches) != 0 {
		t.Fatalf("dry run must not notify")
	}
	if keys := f.mem.Keys(); len(keys) != 0 {
		t.Fatalf("dry run must not persist, got keys %v", keys)
	}
}

type blockingExtractor struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingExtractor) Extract(ctx context.Context, _ source.Definition) ([]collector.Item, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil, nil
}

func TestRunInProgress(t *testing.T) {
	f := newFixture(t, true)
	blocker := &blockingExtractor{started: make(chan struct{}), release: make(chan struct{})}
	f.runner.deps.Extractors = map[source.Strategy]collector.Extractor{
		source.StructuredMarkup: blocker,
		source.SyndicationFeed:  blocker,
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.runner.Run(context.Background())
		done <- err
	}()

	<-blocker.started
	if !f.runner.Running() {
		t.Fatalf("Running() should be true while a run is in flight")
	}
	if _, err := f.runner.Run(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	close(blocker.release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("first run error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("first run did not finish")
	}
	if f.runner.Running() {
		t.Fatalf("Running() should be false after the run")
	}
}

func TestLatestAndHistory(t *testing.T) {
	f := newFixture(t, true)
	if _, ok := f.runner.Latest(); ok {
		t.Fatalf("Latest should be empty before the first run")
	}

	var last Result
	for i := 0; i < 3; i++ {
		res, err := f.runner.Run(context.Background())
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
		last = res
	}

	latest, ok := f.runner.Latest()
	if !ok || latest.RunID != last.RunID {
		t.Fatalf("Latest = %+v, want run %s", latest, last.RunID)
	}

	runs, err := f.runner.History(context.Background(), 2)
	if err != nil {
		t.Fatalf("History error: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != last.RunID {
		t.Fatalf("History = %+v", runs)
	}
	var body map[string]SourceReport
	if err := json.Unmarshal(runs[0].Report, &body); err != nil {
		t.Fatalf("stored report is not JSON: %v", err)
	}
	if body["conoha_wing"].Status != StatusCompleted {
		t.Fatalf("stored report = %+v", body)
	}
}

func TestSnapshotLookup(t *testing.T) {
	f := newFixture(t, true)
	got, err := f.runner.Snapshot(context.Background(), "xserver")
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("Snapshot before first run = %v, %v", got, err)
	}
	if _, err := f.runner.Snapshot(context.Background(), "nope"); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("expected ErrUnknownSource, got %v", err)
	}
}

func TestReportJSONShape(t *testing.T) {
	res := Result{Body: Report{
		"conoha_wing": {Update: 2, Status: StatusCompleted, NewItems: items("x", 2)},
		"xserver":     {Status: StatusFailed, Error: "boom"},
	}}
	var decoded map[string]map[string]any
	if err := json.Unmarshal(res.reportJSON(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	ok := decoded["conoha_wing"]
	if ok["update"] != float64(2) || ok["status"] != "completed" {
		t.Fatalf("unexpected entry: %v", ok)
	}
	if _, present := ok["error"]; present {
		t.Fatalf("error should be omitted when empty")
	}
	if _, present := ok["NewItems"]; present {
		t.Fatalf("new items must not leak into the report")
	}
	if decoded["xserver"]["error"] != "boom" {
		t.Fatalf("unexpected failed entry: %v", decoded["xserver"])
	}
}

// faultySnapshots 包装 Snapshots，按 key 注入读写错误并记录写入次数
type faultySnapshots struct {
	storage.SnapshotStore

	mu        sync.Mutex
	loadErrs  map[string]error
	saveErrs  map[string]error
	saveCalls map[string]int
}

func (s *faultySnapshots) Load(ctx context.Context, key string) ([]collector.Item, error) {
	if err := s.loadErrs[key]; err != nil {
		return nil, err
	}
	return s.SnapshotStore.Load(ctx, key)
}

func (s *faultySnapshots) Save(ctx context.Context, key string, items []collector.Item) error {
	s.mu.Lock()
	s.saveCalls[key]++
	s.mu.Unlock()
	if err := s.saveErrs[key]; err != nil {
		return err
	}
	return s.SnapshotStore.Save(ctx, key, items)
}

func TestRunSnapshotStoreErrors(t *testing.T) {
	f := newFixture(t, true)
	faulty := &faultySnapshots{
		SnapshotStore: f.snaps,
		loadErrs:      map[string]error{"conoha_wing_news.json": errors.New("connection reset by peer")},
		saveErrs:      map[string]error{"xserver_news.json": errors.New("disk full")},
		saveCalls:     map[string]int{},
	}
	f.runner.deps.Snapshots = faulty
	f.extractor.set("conoha_wing", items("conoha", 2)...)
	f.extractor.set("xserver", items("xserver", 1)...)
	f.extractor.set("mixhost_news", items("mixhost", 1)...)

	res, err := f.runner.Run(context.Background())
	// 存储错误只让对应数据源失败，不向调用方返回
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want 200", res.StatusCode)
	}

	read := res.Body["conoha_wing"]
	if read.Status != StatusFailed || read.Update != 0 || read.Error == "" {
		t.Fatalf("conoha_wing should fail on snapshot read: %+v", read)
	}
	if n := faulty.saveCalls["conoha_wing_news.json"]; n != 0 {
		t.Fatalf("snapshot must not be written after a read error, Save called %d times", n)
	}
	if len(f.notifier.batches["conoha_wing"]) != 0 {
		t.Fatalf("conoha_wing must not be notified after a read error")
	}

	write := res.Body["xserver"]
	if write.Status != StatusFailed || write.Update != 1 || write.Error == "" {
		t.Fatalf("xserver should fail on snapshot write: %+v", write)
	}

	if got := res.Body["mixhost_news"]; got.Status != StatusCompleted || got.Update != 1 {
		t.Fatalf("mixhost_news report = %+v", got)
	}
	if got := f.snapshot(t, "mixhost_news.json"); len(got) != 1 {
		t.Fatalf("mixhost_news snapshot = %+v", got)
	}
}
