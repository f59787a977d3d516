package collector

import (
	"context"

	"github.com/LJTian/hostingnews/internal/source"
)

// Item 所有数据源统一输出的更新记录。
// 字段缺失时为空字符串；三个字段完全相同才视为同一条更新。
type Item struct {
	Date  string `json:"date"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Equal 按 date/url/title 精确比较，不做任何规范化
func (i Item) Equal(o Item) bool {
	return i.Date == o.Date && i.URL == o.URL && i.Title == o.Title
}

// Extractor 抽象一种抽取方式（HTML / Feed）
type Extractor interface {
	Extract(ctx context.Context, def source.Definition) ([]Item, error)
}
