package notify

import (
	"context"
	"errors"

	"github.com/LJTian/hostingnews/internal/collector"
)

// Dispatcher 把一个数据源的新增条目推送出去。
// items 为空时不应发起任何请求；失败时返回 collector.ErrDelivery 分类的错误。
type Dispatcher interface {
	Dispatch(ctx context.Context, sourceName string, items []collector.Item) error
}

// Multi 依次推送到所有渠道，错误合并返回
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, sourceName string, items []collector.Item) error {
	if len(items) == 0 {
		return nil
	}
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, sourceName, items); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Combine 过滤掉 nil；一个都没有时返回 nil，表示未配置推送
func Combine(ds ...Dispatcher) Dispatcher {
	var out Multi
	for _, d := range ds {
		if d != nil {
			out = append(out, d)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return out
	}
}

// chunk 按 size 切分，保持顺序
func chunk[T any](list []T, size int) [][]T {
	var out [][]T
	for len(list) > size {
		out = append(out, list[:size])
		list = list[size:]
	}
	if len(list) > 0 {
		out = append(out, list)
	}
	return out
}
