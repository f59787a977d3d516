package collector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/LJTian/hostingnews/internal/source"
)

// HTMLExtractor 用 colly 抓取页面，按数据源的选择器和字段规则抽取
type HTMLExtractor struct {
	userAgent string
	timeout   time.Duration
	logger    *slog.Logger
}

var _ Extractor = (*HTMLExtractor)(nil)

// NewHTMLExtractor timeout 为单次请求超时
func NewHTMLExtractor(userAgent string, timeout time.Duration, logger *slog.Logger) *HTMLExtractor {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTMLExtractor{userAgent: userAgent, timeout: timeout, logger: logger}
}

func (h *HTMLExtractor) Extract(ctx context.Context, def source.Definition) ([]Item, error) {
	rule, err := ruleFor(def)
	if err != nil {
		return nil, err
	}

	// 每次抽取使用独立的 collector，避免 visited 记录影响下一轮
	c := colly.NewCollector(colly.UserAgent(h.userAgent))
	c.SetRequestTimeout(h.timeout)

	items := make([]Item, 0, 32)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	c.OnHTML(def.Selector, func(e *colly.HTMLElement) {
		if it, ok := rule(e.DOM, def); ok {
			items = append(items, it)
		}
	})

	h.logger.Debug("visit", "source", def.Name, "url", def.FetchURL)
	if err := c.Visit(def.FetchURL); err != nil {
		return nil, NewError(KindFetch, def.Name, fmt.Errorf("visit %s: %w", def.FetchURL, err))
	}
	if err := ctx.Err(); err != nil {
		return nil, NewError(KindFetch, def.Name, err)
	}

	if len(items) == 0 {
		h.logger.Warn("selector matched no update entries", "source", def.Name, "selector", def.Selector)
	}
	return items, nil
}

// ExtractDocument 对已经拿到的 HTML 执行同样的选择和规则，不发请求
func ExtractDocument(r io.Reader, def source.Definition) ([]Item, error) {
	rule, err := ruleFor(def)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, NewError(KindExtract, def.Name, fmt.Errorf("parse document: %w", err))
	}

	items := make([]Item, 0, 32)
	doc.Find(def.Selector).Each(func(_ int, el *goquery.Selection) {
		if it, ok := rule(el, def); ok {
			items = append(items, it)
		}
	})
	return items, nil
}

func ruleFor(def source.Definition) (FieldRule, error) {
	if def.Strategy != source.StructuredMarkup {
		return nil, NewError(KindExtract, def.Name, fmt.Errorf("strategy %s is not html", def.Strategy))
	}
	rule, ok := LookupRule(def.Rule)
	if !ok {
		return nil, NewError(KindExtract, def.Name, fmt.Errorf("unknown field rule %q", def.Rule))
	}
	return rule, nil
}
