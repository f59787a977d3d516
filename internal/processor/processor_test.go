package processor

import (
	"testing"

	"github.com/LJTian/hostingnews/internal/collector"
)

func item(date, url, title string) collector.Item {
	return collector.Item{Date: date, URL: url, Title: title}
}

func TestNewItemsAgainstEmptySnapshot(t *testing.T) {
	fresh := []collector.Item{
		item("2024-05-01", "https://example.jp/1", "a"),
		item("2024-05-02", "https://example.jp/2", "b"),
	}

	got := NewItems(fresh, nil)
	if len(got) != len(fresh) {
		t.Fatalf("expected every item to be new, got %d", len(got))
	}
	for i := range fresh {
		if got[i] != fresh[i] {
			t.Fatalf("got[%d] = %+v, want %+v", i, got[i], fresh[i])
		}
	}
}

func TestNewItemsIdempotent(t *testing.T) {
	prior := []collector.Item{
		item("2024-05-01", "https://example.jp/1", "a"),
		item("2024-05-02", "https://example.jp/2", "b"),
	}
	// 顺序不同但内容相同，视为无变化
	fresh := []collector.Item{prior[1], prior[0]}

	if got := NewItems(fresh, prior); len(got) != 0 {
		t.Fatalf("expected no new items, got %+v", got)
	}
}

func TestNewItemsFieldLevelEquality(t *testing.T) {
	prior := []collector.Item{item("2024-05-01", "https://example.jp/1", "メンテナンス")}
	fresh := []collector.Item{
		item("2024-05-01", "https://example.jp/1", "メンテナンス"),
		// 标题有变化
		item("2024-05-01", "https://example.jp/1", "メンテナンス（更新）"),
		// 日期有变化
		item("2024-05-03", "https://example.jp/1", "メンテナンス"),
		// 前后空白也算不同，不做规范化
		item("2024-05-01", "https://example.jp/1", " メンテナンス"),
	}

	got := NewItems(fresh, prior)
	if len(got) != 3 {
		t.Fatalf("expected 3 new items, got %d: %+v", len(got), got)
	}
	if got[0] != fresh[1] || got[1] != fresh[2] || got[2] != fresh[3] {
		t.Fatalf("new items should follow fresh order: %+v", got)
	}
}

func TestNewItemsEmptyFresh(t *testing.T) {
	prior := []collector.Item{item("2024-05-01", "https://example.jp/1", "a")}
	if got := NewItems(nil, prior); len(got) != 0 {
		t.Fatalf("expected no new items for empty fetch, got %+v", got)
	}
}

func TestNewItemsKeepsDuplicatesWithinFetch(t *testing.T) {
	dup := item("2024-05-01", "https://example.jp/1", "a")
	got := NewItems([]collector.Item{dup, dup}, nil)
	if len(got) != 2 {
		t.Fatalf("duplicates within one fetch are not removed, got %d", len(got))
	}
}

func TestKeyOfMatchesItemEqual(t *testing.T) {
	base := item("2024-05-01", "https://example.jp/1", "a")
	cases := []collector.Item{
		base,
		item("2024-05-02", "https://example.jp/1", "a"),
		item("2024-05-01", "https://example.jp/2", "a"),
		item("2024-05-01", "https://example.jp/1", "b"),
		item("2024-05-01", "https://example.jp/1", "a "),
		{},
	}
	for _, other := range cases {
		if got, want := keyOf(base) == keyOf(other), base.Equal(other); got != want {
			t.Fatalf("keyOf equality %v != Equal %v for %+v", got, want, other)
		}
	}
}
