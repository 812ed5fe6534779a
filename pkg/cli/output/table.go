package output

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/fatih/color"
)

// Table 简单表格输出
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
	out     io.Writer
}

// NewTable 创建表格，输出到标准输出
func NewTable(headers []string) *Table {
	return NewTableTo(os.Stdout, headers)
}

// NewTableTo 创建输出到指定 writer 的表格
func NewTableTo(w io.Writer, headers []string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = displayWidth(h)
	}
	return &Table{
		headers: headers,
		rows:    make([][]string, 0),
		widths:  widths,
		out:     w,
	}
}

// AddRow 添加行
func (t *Table) AddRow(row []string) {
	for i, cell := range row {
		if i < len(t.widths) && displayWidth(cell) > t.widths[i] {
			t.widths[i] = displayWidth(cell)
		}
	}
	t.rows = append(t.rows, row)
}

// Len 数据行数
func (t *Table) Len() int { return len(t.rows) }

// Render 渲染表格
func (t *Table) Render() {
	headerColor := color.New(color.FgCyan, color.Bold)
	for i, h := range t.headers {
		headerColor.Fprint(t.out, pad(h, t.widths[i])+"  ")
	}
	fmt.Fprintln(t.out)

	for i := range t.headers {
		fmt.Fprint(t.out, strings.Repeat("-", t.widths[i])+"  ")
	}
	fmt.Fprintln(t.out)

	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(t.widths) {
				fmt.Fprint(t.out, pad(cell, t.widths[i])+"  ")
			}
		}
		fmt.Fprintln(t.out)
	}
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// displayWidth 去掉颜色控制符后按 rune 计数
func displayWidth(s string) int {
	return len([]rune(ansiPattern.ReplaceAllString(s, "")))
}

func pad(s string, width int) string {
	if n := width - displayWidth(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}
