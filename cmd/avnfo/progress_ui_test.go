package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/avnfo/internal/config"
	"github.com/John-Robertt/avnfo/internal/domain"
)

func TestFormatItemLine(t *testing.T) {
	cases := []struct {
		res  domain.ItemResult
		want string
	}{
		{
			res:  domain.ItemResult{Leaf: "a", Status: domain.StatusProcessed, Changes: domain.ChangeCounts{Actor: 1, Repair: 2, Reordered: true}, RenamedTo: "ABC-1 X"},
			want: "[1/3] a OK actor=1 repair=2 reordered -> ABC-1 X (0.0s)",
		},
		{
			res:  domain.ItemResult{Leaf: "b", Status: domain.StatusSkipped, SkipReason: domain.SkipUnchanged},
			want: "[1/3] b SKIP unchanged (0.0s)",
		},
		{
			res:  domain.ItemResult{Status: domain.StatusFailed, ErrorCode: domain.ErrCodeIOFailed, ErrorMsg: "boom"},
			want: "[1/3] <root> FAIL io_failed: boom (0.0s)",
		},
	}
	for _, tc := range cases {
		if got := formatItemLine(1, 3, tc.res, 0); got != tc.want {
			t.Fatalf("got=%q want=%q", got, tc.want)
		}
	}
}

func TestProgressUI_WritesPhases(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressUI(&buf)
	p.OnStart(config.EffectiveConfig{Root: "/lib", Template: "num", Workers: 2, DryRun: true, DoActor: true}, "rid")
	p.OnPhaseDone("scan", map[string]any{"leaves": 0}, time.Second)
	p.OnPhaseDone("exec", map[string]any{"workers": 2, "total_items": 0}, 0)
	p.stop()

	out := buf.String()
	for _, frag := range []string{"avnfo run rid", "mode: dry-run", "passes: actor=on series=off rename=off", "扫描: leaves=0 (1.0s)", "执行: workers=2 total_items=0"} {
		if !strings.Contains(out, frag) {
			t.Fatalf("输出缺少 %q：\n%s", frag, out)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncate("日本語タイトル", 5); got != "日本..." {
		t.Fatalf("truncate=%q", got)
	}
	if got := truncate("abc", 10); got != "abc" {
		t.Fatalf("truncate=%q", got)
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"num", "doc"}, [][]string{{"ABC-1", "a/m.nfo"}, {"ABC-1"}}, nil)
	if !strings.Contains(out, "ABC-1") || !strings.Contains(out, "a/m.nfo") {
		t.Fatalf("表格内容缺失：\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatalf("无表头时应返回空串")
	}
}

func TestIsTTY_NonFile(t *testing.T) {
	if isTTY(&bytes.Buffer{}) {
		t.Fatalf("bytes.Buffer 不应视为 TTY")
	}
}
