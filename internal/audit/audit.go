// Package audit 提供批处理的两条日志流：
//
//   - 明细流（detail）：每个动作、每个 before/after、每次跳过及原因，写入审计文件
//   - UI 流（ui）：只包含有修改的结果，给操作者看
//
// 两条流都在内部互斥锁下串行写入，可被所有 worker 并发使用。
package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultDirName 是 <root> 下的日志目录名。
const DefaultDirName = "log"

// FileName 返回一次运行的审计文件名：rename-<YYYYMMDD-HHMMSS>.log。
func FileName(t time.Time) string {
	return "rename-" + t.Format("20060102-150405") + ".log"
}

// Sink 持有两条日志流。
type Sink struct {
	detail *slog.Logger
	ui     *slog.Logger
	path   string
	closer io.Closer
}

// New 用给定 writer 构造 Sink；ui 为 nil 时 UI 流被丢弃。
func New(detail, ui io.Writer) *Sink {
	if detail == nil {
		detail = io.Discard
	}
	if ui == nil {
		ui = io.Discard
	}
	return &Sink{
		detail: slog.New(NewLineHandler(detail, slog.LevelInfo)),
		ui:     slog.New(NewLineHandler(ui, slog.LevelInfo)),
	}
}

// Discard 返回一个丢弃所有输出的 Sink。
func Discard() *Sink { return New(nil, nil) }

// Open 在 dir（为空时为 <root>/log）下创建本次运行的审计文件，返回写入该文件的 Sink。
// 同名文件已存在时追加写入（明细流只追加）。
func Open(root, dir string, now time.Time, ui io.Writer) (*Sink, error) {
	dir = strings.TrimSpace(dir)
	switch {
	case dir == "":
		dir = filepath.Join(root, DefaultDirName)
	case !filepath.IsAbs(dir):
		dir = filepath.Join(root, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败：%w", err)
	}

	p := filepath.Join(dir, FileName(now))
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开审计文件失败：%w", err)
	}

	s := New(f, ui)
	s.path = p
	s.closer = f
	return s, nil
}

// Path 返回审计文件路径（非文件 Sink 为空串）。
func (s *Sink) Path() string { return s.path }

// Close 关闭审计文件。
func (s *Sink) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

// Detail 返回明细流 logger。
func (s *Sink) Detail() *slog.Logger { return s.detail }

// UI 返回 UI 流 logger。
func (s *Sink) UI() *slog.Logger { return s.ui }

func (s *Sink) Info(msg string, args ...any)  { s.detail.Info(msg, args...) }
func (s *Sink) Warn(msg string, args ...any)  { s.detail.Warn(msg, args...) }
func (s *Sink) Error(msg string, args ...any) { s.detail.Error(msg, args...) }

// Failure 在 UI 流记录一次没有修改的失败（明细流已由调用方单独记录）。
func (s *Sink) Failure(msg string, args ...any) { s.ui.Error(msg, args...) }

// Success 在明细流记录一次已确认的修改。
func (s *Sink) Success(msg string, args ...any) {
	s.detail.Log(context.Background(), LevelSuccess, msg, args...)
}

// Outcome 同时写入两条流；用于有修改的结果。
func (s *Sink) Outcome(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	s.detail.Log(ctx, level, msg, args...)
	s.ui.Log(ctx, level, msg, args...)
}
