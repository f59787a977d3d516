package collector

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/LJTian/hostingnews/internal/source"
)

// FieldRule 从一个匹配到的元素里取出 date/title/url。
// 返回 false 表示该元素不是一条更新（例如没有日期的说明区块），直接跳过。
// 找不到的子元素对应字段留空，条目照常输出。
type FieldRule func(el *goquery.Selection, def source.Definition) (Item, bool)

// rules 规则名 -> 抽取规则；各家页面结构不同，只能逐个定义
var rules = map[string]FieldRule{
	"conoha":                conohaRule,
	"muumuu":                muumuuRule,
	"xserver":               xserverRule,
	"xserver_feed_relative": xserverFeedRelativeRule,
	"xdomain":               xdomainRule,
	"lolipop":               lolipopRule,
}

// LookupRule 按名称取规则
func LookupRule(name string) (FieldRule, bool) {
	r, ok := rules[name]
	return r, ok
}

// RuleNames 已注册的规则名，按名称排序
func RuleNames() []string {
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func conohaRule(el *goquery.Selection, def source.Definition) (Item, bool) {
	return Item{
		Date:  strings.TrimSpace(el.Find("div.listNewsUnit_date").First().Text()),
		Title: strings.TrimSpace(el.Find("span.textLink.has-arrow.textColor-inherit.has-noHover").First().Text()),
		URL:   joinURL(def.BaseURL, attr(el.Find("a.listNewsUnit").First(), "href")),
	}, true
}

func muumuuRule(el *goquery.Selection, def source.Definition) (Item, bool) {
	date := el.Find("p.muu-section__date").First()
	if date.Length() == 0 {
		return Item{}, false
	}
	return Item{
		Date:  date.Text(),
		Title: el.Find("h3.muu-infomation__title").First().Text(),
		URL:   joinURL(def.BaseURL, attr(el.Find("a.muu-button.muu-button--primary").First(), "href")),
	}, true
}

// xserverRule 站内相对链接，形如 ../news/xxx，去掉 ".." 后拼 baseUrl
func xserverRule(el *goquery.Selection, def source.Definition) (Item, bool) {
	return xserverItem(el, func(href string) string {
		return joinURL(def.BaseURL, strings.ReplaceAll(href, "..", ""))
	}), true
}

// xserverFeedRelativeRule 链接相对于新闻列表页本身，直接拼 fetchUrl
func xserverFeedRelativeRule(el *goquery.Selection, def source.Definition) (Item, bool) {
	return xserverItem(el, func(href string) string {
		return joinURL(def.FetchURL, href)
	}), true
}

// dl 中有多个 a 时以最后一个为准
func xserverItem(el *goquery.Selection, resolve func(string) string) Item {
	it := Item{Date: el.Find("dt").First().Text()}
	if a := el.Find("a").Last(); a.Length() > 0 {
		it.URL = resolve(attr(a, "href"))
		it.Title = a.Text()
	}
	return it
}

// xdomainRule 链接本身是绝对地址
func xdomainRule(el *goquery.Selection, _ source.Definition) (Item, bool) {
	a := el.Find("a.hover-opacity").First()
	return Item{
		Date:  el.Find("span.date.century").First().Text(),
		Title: strings.TrimSpace(a.Text()),
		URL:   attr(a, "href"),
	}, true
}

// lolipopRule 详情链接取面板里最后一个 a
func lolipopRule(el *goquery.Selection, def source.Definition) (Item, bool) {
	return Item{
		Date:  strings.TrimSpace(el.Find("time.lol-info-list__date").First().Text()),
		Title: strings.TrimSpace(el.Find("span.lol-info-item__title").First().Text()),
		URL:   joinURL(def.BaseURL, attr(el.Find("p.lol-info-accordion-panel__link > a").Last(), "href")),
	}, true
}

func attr(sel *goquery.Selection, name string) string {
	v, _ := sel.Attr(name)
	return v
}

// joinURL 直接拼接；href 缺失时整个 url 留空
func joinURL(base, href string) string {
	if href == "" {
		return ""
	}
	return base + href
}
