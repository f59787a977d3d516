package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/LJTian/hostingnews/internal/collector"
	"github.com/LJTian/hostingnews/internal/pipeline"
)

// jsonOutput dry-run 时在执行结果之外附带各数据源的新增条目
type jsonOutput struct {
	pipeline.Result
	NewItems map[string][]collector.Item `json:"newItems,omitempty"`
}

func writeJSON(w io.Writer, res pipeline.Result, dryRun bool) error {
	out := jsonOutput{Result: res}
	if dryRun {
		out.NewItems = make(map[string][]collector.Item, len(res.Body))
		for _, name := range res.Body.Names() {
			out.NewItems[name] = append([]collector.Item{}, res.Body[name].NewItems...)
		}
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// writeSummary 以对齐的表格输出每个数据源的结果；dry-run 时附带新增条目
func writeSummary(w io.Writer, res pipeline.Result, dryRun bool) {
	rows := [][]string{{"source", "status", "update", "error"}}
	for _, name := range res.Body.Names() {
		sr := res.Body[name]
		rows = append(rows, []string{name, string(sr.Status), strconv.Itoa(sr.Update), sr.Error})
	}

	for _, line := range renderTable(rows) {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "run %s: status=%d updates=%d failed=%d elapsed=%s\n",
		res.RunID, res.StatusCode, res.Body.TotalUpdates(), len(res.Body.Failed()), res.Duration().Round(time.Millisecond))

	if !dryRun {
		return
	}
	for _, name := range res.Body.Names() {
		for _, it := range res.Body[name].NewItems {
			fmt.Fprintf(w, "[%s] %s %s %s\n", name, it.Date, it.Title, it.URL)
		}
	}
}

// renderTable 按显示宽度补齐，日文标题也能对齐
func renderTable(rows [][]string) []string {
	if len(rows) == 0 {
		return nil
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if cw := runewidth.StringWidth(row[i]); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	out := make([]string, 0, len(rows)+1)
	for r, row := range rows {
		var sb strings.Builder
		sb.WriteString("|")
		for i, width := range widths {
			content := ""
			if i < len(row) {
				content = row[i]
			}
			sb.WriteString(" ")
			sb.WriteString(runewidth.FillRight(content, width))
			sb.WriteString(" |")
		}
		out = append(out, sb.String())

		if r == 0 {
			var sep strings.Builder
			sep.WriteString("|")
			for _, width := range widths {
				sep.WriteString(" ")
				sep.WriteString(strings.Repeat("-", width))
				sep.WriteString(" |")
			}
			out = append(out, sep.String())
		}
	}
	return out
}
