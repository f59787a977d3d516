package processor

import "github.com/LJTian/hostingnews/internal/collector"

// itemKey 以 date/url/title 三元组作为同一条更新的唯一标识
type itemKey struct {
	date, url, title string
}

func keyOf(it collector.Item) itemKey {
	return itemKey{date: it.Date, url: it.URL, title: it.Title}
}

// NewItems 返回 fresh 中在 prior 里找不到相同记录的条目，保持 fresh 的顺序。
// fresh 自身的重复不做去重。
func NewItems(fresh, prior []collector.Item) []collector.Item {
	seen := make(map[itemKey]struct{}, len(prior))
	for _, it := range prior {
		seen[keyOf(it)] = struct{}{}
	}

	out := make([]collector.Item, 0, len(fresh))
	for _, it := range fresh {
		if _, ok := seen[keyOf(it)]; ok {
			continue
		}
		out = append(out, it)
	}
	return out
}
