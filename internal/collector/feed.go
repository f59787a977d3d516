package collector

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/LJTian/hostingnews/internal/source"
)

// updatedLayout feed 里 updated 字段的固定格式，例如 "Wed, 24 May 2023 00:00:00 +0900"
const updatedLayout = "Mon, 02 Jan 2006 15:04:05 -0700"

// 日本时间，feed 的日期统一换算到东九区后只保留日期部分
var locTokyo *time.Location

func init() {
	locTokyo, _ = time.LoadLocation("Asia/Tokyo")
	if locTokyo == nil {
		locTokyo = time.FixedZone("JST", 9*3600)
	}
}

// FeedExtractor 拉取并解析 RSS / Atom，按 tag 白名单过滤
type FeedExtractor struct {
	fetcher *HTTPFetcher
}

var _ Extractor = (*FeedExtractor)(nil)

func NewFeedExtractor(fetcher *HTTPFetcher) *FeedExtractor {
	if fetcher == nil {
		fetcher = NewHTTPFetcher(nil, "", 0)
	}
	return &FeedExtractor{fetcher: fetcher}
}

func (f *FeedExtractor) Extract(ctx context.Context, def source.Definition) ([]Item, error) {
	if def.Strategy != source.SyndicationFeed {
		return nil, NewError(KindExtract, def.Name, fmt.Errorf("strategy %s is not feed", def.Strategy))
	}

	body, err := f.fetcher.Get(ctx, def.FetchURL)
	if err != nil {
		return nil, NewError(KindFetch, def.Name, err)
	}

	return ParseFeed(body, def)
}

// ParseFeed 解析已拿到的 feed 内容
func ParseFeed(body []byte, def source.Definition) ([]Item, error) {
	// gofeed.Parser 不保证并发安全，每次新建
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, NewError(KindFeedParse, def.Name, fmt.Errorf("parse feed: %w", err))
	}

	items := make([]Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if !matchTags(entry.Categories, def.TagFilter) {
			continue
		}

		published, err := entryTime(entry)
		if err != nil {
			return nil, NewError(KindFeedParse, def.Name, fmt.Errorf("entry %q: %w", entry.Link, err))
		}

		items = append(items, Item{
			Date:  published.In(locTokyo).Format("2006-01-02"),
			Title: entry.Title,
			URL:   entry.Link,
		})
	}
	return items, nil
}

// matchTags 条目没有分类或者没配置白名单时不过滤；否则要求至少命中一个
func matchTags(categories, filter []string) bool {
	if len(categories) == 0 || len(filter) == 0 {
		return true
	}
	allowed := make(map[string]struct{}, len(filter))
	for _, t := range filter {
		allowed[t] = struct{}{}
	}
	for _, c := range categories {
		if _, ok := allowed[c]; ok {
			return true
		}
	}
	return false
}

// entryTime 优先用发布时间，没有则按固定格式解析 updated
func entryTime(entry *gofeed.Item) (time.Time, error) {
	if entry.PublishedParsed != nil {
		return *entry.PublishedParsed, nil
	}
	if entry.Updated != "" {
		if t, err := time.Parse(updatedLayout, entry.Updated); err == nil {
			return t, nil
		}
		// Atom 的 updated 是 RFC3339，gofeed 已经解析过
		if entry.UpdatedParsed != nil {
			return *entry.UpdatedParsed, nil
		}
		return time.Time{}, fmt.Errorf("unparsable updated time %q", entry.Updated)
	}
	return time.Time{}, fmt.Errorf("entry has neither published nor updated time")
}
