package audit

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// body 去掉时间戳前缀，只保留 "LEVEL message ..." 部分。
func body(t *testing.T, line string) string {
	t.Helper()
	ts, rest, ok := strings.Cut(line, " ")
	if !ok {
		t.Fatalf("行格式不正确：%q", line)
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Fatalf("时间戳不是 RFC3339：%q", ts)
	}
	return rest
}

func lines(b *bytes.Buffer) []string {
	s := strings.TrimRight(b.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestLineHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewLineHandler(&buf, slog.LevelInfo)).With("leaf", "a b")

	log.Log(t.Context(), LevelSuccess, "改写完成", "field", "tag", "before", "", "after", "x")
	log.Debug("不应输出")
	log.WithGroup("g").Warn("多行\n消息", "k", 1)

	got := lines(&buf)
	if len(got) != 2 {
		t.Fatalf("期望 2 行，实际 %d：%q", len(got), got)
	}
	if b := body(t, got[0]); b != `SUCCESS 改写完成 leaf="a b" field=tag before="" after=x` {
		t.Fatalf("第一行不符合预期：%q", b)
	}
	if b := body(t, got[1]); b != `WARN 多行 消息 leaf="a b" g.k=1` {
		t.Fatalf("第二行不符合预期：%q", b)
	}
}

func TestLevelString(t *testing.T) {
	cases := map[slog.Level]string{
		slog.LevelDebug: "DEBUG",
		slog.LevelInfo:  "INFO",
		LevelSuccess:    "SUCCESS",
		slog.LevelWarn:  "WARN",
		slog.LevelError: "ERROR",
	}
	for l, want := range cases {
		if got := LevelString(l); got != want {
			t.Fatalf("LevelString(%v) = %q，期望 %q", l, got, want)
		}
	}
}

func TestSink_OutcomeGoesToBothStreams(t *testing.T) {
	var detail, ui bytes.Buffer
	s := New(&detail, &ui)

	s.Info("跳过", "reason", "unchanged")
	s.Success("字段修改", "field", "series")
	s.Outcome(LevelSuccess, "已处理", "leaf", "x")

	if n := len(lines(&detail)); n != 3 {
		t.Fatalf("明细流应有 3 行，实际 %d", n)
	}
	u := lines(&ui)
	if len(u) != 1 || !strings.HasPrefix(body(t, u[0]), "SUCCESS 已处理") {
		t.Fatalf("UI 流只应包含结果行：%q", u)
	}
}

func TestSink_FailureOnlyGoesToUI(t *testing.T) {
	var detail, ui bytes.Buffer
	s := New(&detail, &ui)

	s.Failure("leaf.failed", "leaf", "broken", "error_code", "parse_failed")

	if detail.Len() != 0 {
		t.Fatalf("Failure 不应写明细流：%q", detail.String())
	}
	u := lines(&ui)
	if len(u) != 1 || body(t, u[0]) != "ERROR leaf.failed leaf=broken error_code=parse_failed" {
		t.Fatalf("UI 流内容不符合预期：%q", u)
	}
}

func TestSink_ConcurrentWritesAreLineAtomic(t *testing.T) {
	var detail bytes.Buffer
	s := New(&detail, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Info("msg", "worker", i, "n", j)
			}
		}(i)
	}
	wg.Wait()

	got := lines(&detail)
	if len(got) != 16*50 {
		t.Fatalf("期望 %d 行，实际 %d", 16*50, len(got))
	}
	for _, l := range got {
		if !strings.HasPrefix(body(t, l), "INFO msg worker=") {
			t.Fatalf("行被交错写入：%q", l)
		}
	}
}

func TestOpen_CreatesRunFile(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local)

	s, err := Open(root, "", now, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	s.Info("run.start", "run_id", "x")
	if err := s.Close(); err != nil {
		t.Fatalf("关闭失败：%v", err)
	}

	want := filepath.Join(root, "log", "rename-20240506-070809.log")
	if s.Path() != want {
		t.Fatalf("期望 %q，实际 %q", want, s.Path())
	}
	b, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("读取失败：%v", err)
	}
	if !strings.Contains(string(b), "INFO run.start run_id=x") {
		t.Fatalf("文件内容不符合预期：%q", b)
	}
}

func TestOpen_RelativeDir(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root, "audit", time.Now(), nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer s.Close()
	if filepath.Dir(s.Path()) != filepath.Join(root, "audit") {
		t.Fatalf("相对目录应基于 root：%q", s.Path())
	}
}
