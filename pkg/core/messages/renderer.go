package messages

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/LENAX/async-actions/pkg/core/cache"
	"github.com/LENAX/async-actions/pkg/core/state"
	"github.com/LENAX/async-actions/pkg/core/task"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer 任务消息渲染器（对外导出）
// debug 模式显示完整任务名和完整 traceback
type Renderer struct {
	tmpl  *template.Template
	debug bool
	cache cache.Cache
	ttl   time.Duration
}

type noteView struct {
	Level string
	Text  string
}

type messageView struct {
	TaskID      string
	TaskName    string
	VerboseName string
	Status      string
	StatusClass string
	StatusTag   string
	Target      string
	Traceback   string
	Checksum    string
	Notes       []noteView
}

// NewRenderer 创建渲染器，c 为空时不缓存
func NewRenderer(debug bool, c cache.Cache, ttl time.Duration) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("解析消息模板失败: %w", err)
	}
	return &Renderer{tmpl: tmpl, debug: debug, cache: c, ttl: ttl}, nil
}

func cacheKey(taskID, checksum string) string {
	return taskID + ":" + checksum
}

// Render 渲染单个任务状态，相同 (task_id, checksum) 命中缓存
func (r *Renderer) Render(st *state.TaskState, notes []*state.Note, checksum string) (string, error) {
	key := cacheKey(st.TaskID, checksum)
	if r.cache != nil {
		if html, ok := r.cache.Get(key); ok {
			return html, nil
		}
	}

	view := messageView{
		TaskID:      st.TaskID,
		TaskName:    r.formatTaskName(st.TaskName),
		VerboseName: st.VerboseName,
		Status:      string(st.Status),
		StatusClass: strings.ToLower(string(st.Status)),
		StatusTag:   StatusTagFor(st.Status),
		Traceback:   r.formatTraceback(st.Traceback),
		Checksum:    checksum,
	}
	if view.VerboseName == "" {
		view.VerboseName = task.DeriveVerboseName(st.TaskName)
	}
	if ref := st.Target(); !ref.IsZero() {
		view.Target = ref.String()
	}
	for _, n := range notes {
		view.Notes = append(view.Notes, noteView{Level: n.Level.String(), Text: n.Text})
	}

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "task_message", view); err != nil {
		return "", fmt.Errorf("渲染任务消息失败: %w", err)
	}
	html := buf.String()
	if r.cache != nil {
		r.cache.Set(key, html, r.ttl)
	}
	return html, nil
}

func (r *Renderer) formatTaskName(name string) string {
	if r.debug {
		return name
	}
	return task.ShortName(name)
}

func (r *Renderer) formatTraceback(tb string) string {
	if r.debug {
		return tb
	}
	return state.LastLine(tb)
}
