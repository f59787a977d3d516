package pipeline

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/LJTian/hostingnews/internal/collector"
)

// Status 单个数据源本轮的终态
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// SourceReport 单个数据源的执行结果
type SourceReport struct {
	// Update 本轮检测到的新增条数；未走到比对步骤时为 0
	Update int    `json:"update"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`

	// 新增条目本身不进入报告，只给 dry-run 打印用
	NewItems []collector.Item `json:"-"`
}

// Report 数据源名 -> 结果
type Report map[string]SourceReport

// Names 按名称排序
func (r Report) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Failed 失败的数据源，按名称排序
func (r Report) Failed() []string {
	var out []string
	for _, name := range r.Names() {
		if r[name].Status == StatusFailed {
			out = append(out, name)
		}
	}
	return out
}

// TotalUpdates 所有数据源新增条数之和
func (r Report) TotalUpdates() int {
	total := 0
	for _, sr := range r {
		total += sr.Update
	}
	return total
}

// Result 一次执行的对外结果
type Result struct {
	RunID      string    `json:"runId"`
	StatusCode int       `json:"statusCode"`
	Body       Report    `json:"body"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Duration 本次执行耗时
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r Result) reportJSON() []byte {
	bs, err := json.Marshal(r.Body)
	if err != nil {
		return []byte("{}")
	}
	return bs
}
