package collector

import (
	"errors"
	"fmt"
)

// Kind 错误分类，决定编排层如何处理
type Kind string

const (
	KindFetch     Kind = "fetch"
	KindExtract   Kind = "extract"
	KindFeedParse Kind = "feed_parse"
	KindStore     Kind = "store"
	KindDelivery  Kind = "delivery"
)

var (
	ErrFetch     = errors.New("fetch failed")
	ErrExtract   = errors.New("extract failed")
	ErrFeedParse = errors.New("feed parse failed")
	ErrStore     = errors.New("store failed")
	ErrDelivery  = errors.New("delivery failed")
)

var sentinels = map[Kind]error{
	KindFetch:     ErrFetch,
	KindExtract:   ErrExtract,
	KindFeedParse: ErrFeedParse,
	KindStore:     ErrStore,
	KindDelivery:  ErrDelivery,
}

// Error 带数据源名和分类的错误，可用 errors.Is(err, ErrFetch) 等判断
type Error struct {
	Kind   Kind
	Source string
	Err    error
}

// NewError 包装一个分类错误
func NewError(kind Kind, sourceName string, err error) *Error {
	return &Error{Kind: kind, Source: sourceName, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// KindOf 返回错误链上第一个分类，没有则为空
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
