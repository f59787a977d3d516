package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/LJTian/hostingnews/internal/collector"
)

func TestEncodeSnapshotFormat(t *testing.T) {
	items := []collector.Item{
		{Date: "2024-05-01", Title: "メンテナンス & <重要>", URL: "https://example.jp/?a=1&b=2"},
	}
	got, err := EncodeSnapshot(items)
	if err != nil {
		t.Fatalf("EncodeSnapshot error: %v", err)
	}
	want := `[
  {
    "date": "2024-05-01",
    "title": "メンテナンス & <重要>",
    "url": "https://example.jp/?a=1&b=2"
  }
]`
	if string(got) != want {
		t.Fatalf("EncodeSnapshot =\n%s\nwant\n%s", got, want)
	}
}

func TestEncodeSnapshotEmpty(t *testing.T) {
	got, err := EncodeSnapshot(nil)
	if err != nil {
		t.Fatalf("EncodeSnapshot error: %v", err)
	}
	if string(got) != "[]" {
		t.Fatalf("EncodeSnapshot(nil) = %q, want []", got)
	}
}

func TestDecodeSnapshotNullFields(t *testing.T) {
	items, err := DecodeSnapshot([]byte(`[{"date":null,"url":"https://a","title":"t"}]`))
	if err != nil {
		t.Fatalf("DecodeSnapshot error: %v", err)
	}
	if len(items) != 1 || items[0].Date != "" || items[0].URL != "https://a" {
		t.Fatalf("unexpected decode result: %+v", items)
	}

	// 空内容和 null 都当作空快照
	for _, body := range []string{"", "null", "  "} {
		items, err := DecodeSnapshot([]byte(body))
		if err != nil {
			t.Fatalf("DecodeSnapshot(%q) error: %v", body, err)
		}
		if items == nil || len(items) != 0 {
			t.Fatalf("DecodeSnapshot(%q) = %+v, want empty non-nil", body, items)
		}
	}

	if _, err := DecodeSnapshot([]byte("{broken")); err == nil {
		t.Fatalf("expected error for malformed snapshot")
	}
}

func TestSnapshotsRoundTripWithPrefix(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	snaps := NewSnapshots(mem, "hosting/")

	if _, err := snaps.Load(ctx, "conoha.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first save, got %v", err)
	}

	items := []collector.Item{
		{Date: "2024-05-01", Title: "a", URL: "https://a"},
		{Date: "2024-04-30", Title: "b", URL: "https://b"},
	}
	if err := snaps.Save(ctx, "conoha.json", items); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if keys := mem.Keys(); len(keys) != 1 || keys[0] != "hosting/conoha.json" {
		t.Fatalf("unexpected keys: %v", keys)
	}

	got, err := snaps.Load(ctx, "conoha.json")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(got) != 2 || got[0] != items[0] || got[1] != items[1] {
		t.Fatalf("Load = %+v, want %+v", got, items)
	}

	// 整体覆盖，不合并
	if err := snaps.Save(ctx, "conoha.json", nil); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	got, err = snaps.Load(ctx, "conoha.json")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty snapshot after overwrite, got %+v", got)
	}
}
