package source

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

// Strategy 决定用哪种方式抽取数据
type Strategy string

const (
	// StructuredMarkup 抓取 HTML 页面，按选择器 + 字段规则抽取
	StructuredMarkup Strategy = "structured-markup"
	// SyndicationFeed 解析 RSS / Atom
	SyndicationFeed Strategy = "syndication-feed"
)

// Definition 描述一个数据源：抓取地址、抽取方式以及快照存放的 key
type Definition struct {
	Name     string   `yaml:"name" json:"name"`
	Strategy Strategy `yaml:"strategy" json:"strategy"`
	FetchURL string   `yaml:"fetchUrl" json:"fetchUrl"`
	// BaseURL 只对返回相对链接的 HTML 源有意义
	BaseURL  string `yaml:"baseUrl,omitempty" json:"baseUrl,omitempty"`
	Selector string `yaml:"selector,omitempty" json:"selector,omitempty"`
	// Rule 是字段抽取规则名，对应 collector 中的规则表
	Rule        string   `yaml:"rule,omitempty" json:"rule,omitempty"`
	TagFilter   []string `yaml:"tagFilter,omitempty" json:"tagFilter,omitempty"`
	SnapshotKey string   `yaml:"snapshotKey" json:"snapshotKey"`
}

// Registry 固定的数据源表，构造后不再修改
type Registry struct {
	defs   []Definition
	byName map[string]int
}

//go:embed sources.yaml
var defaultSources []byte

// Default 返回内置的数据源表
func Default() (*Registry, error) {
	return Parse(defaultSources)
}

// Parse 解析 YAML 格式的数据源表并校验
func Parse(data []byte) (*Registry, error) {
	var doc struct {
		Sources []Definition `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}
	return New(doc.Sources)
}

// New 校验并构造 Registry，入参会被复制
func New(defs []Definition) (*Registry, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("no sources defined")
	}

	r := &Registry{
		defs:   make([]Definition, 0, len(defs)),
		byName: make(map[string]int, len(defs)),
	}
	keys := make(map[string]string, len(defs))

	for _, d := range defs {
		if err := d.validate(); err != nil {
			return nil, err
		}
		if _, ok := r.byName[d.Name]; ok {
			return nil, fmt.Errorf("source %s: duplicate name", d.Name)
		}
		// 快照 key 不能在数据源之间共享，否则并行执行时会互相覆盖
		if other, ok := keys[d.SnapshotKey]; ok {
			return nil, fmt.Errorf("source %s: snapshot key %s already used by %s", d.Name, d.SnapshotKey, other)
		}
		keys[d.SnapshotKey] = d.Name

		d.TagFilter = append([]string(nil), d.TagFilter...)
		r.byName[d.Name] = len(r.defs)
		r.defs = append(r.defs, d)
	}

	return r, nil
}

func (d Definition) validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("source without name")
	}
	if d.FetchURL == "" {
		return fmt.Errorf("source %s: fetchUrl is required", d.Name)
	}
	if d.SnapshotKey == "" {
		return fmt.Errorf("source %s: snapshotKey is required", d.Name)
	}

	switch d.Strategy {
	case StructuredMarkup:
		if d.Selector == "" {
			return fmt.Errorf("source %s: selector is required for %s", d.Name, d.Strategy)
		}
		if _, err := cascadia.Compile(d.Selector); err != nil {
			return fmt.Errorf("source %s: invalid selector %q: %w", d.Name, d.Selector, err)
		}
		if d.Rule == "" {
			return fmt.Errorf("source %s: rule is required for %s", d.Name, d.Strategy)
		}
		if len(d.TagFilter) > 0 {
			return fmt.Errorf("source %s: tagFilter only applies to %s", d.Name, SyndicationFeed)
		}
	case SyndicationFeed:
		if d.Selector != "" || d.Rule != "" {
			return fmt.Errorf("source %s: selector/rule only apply to %s", d.Name, StructuredMarkup)
		}
	default:
		return fmt.Errorf("source %s: unknown strategy %q", d.Name, d.Strategy)
	}

	return nil
}

// All 按定义顺序返回所有数据源的副本
func (r *Registry) All() []Definition {
	out := make([]Definition, len(r.defs))
	for i, d := range r.defs {
		d.TagFilter = append([]string(nil), d.TagFilter...)
		out[i] = d
	}
	return out
}

// Lookup 按名称查找数据源
func (r *Registry) Lookup(name string) (Definition, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Definition{}, false
	}
	d := r.defs[i]
	d.TagFilter = append([]string(nil), d.TagFilter...)
	return d, true
}

// Len 数据源数量
func (r *Registry) Len() int {
	return len(r.defs)
}
