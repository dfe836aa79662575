package run

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/avnfo/internal/audit"
	"github.com/John-Robertt/avnfo/internal/config"
	"github.com/John-Robertt/avnfo/internal/mapping"
)

func writeDoc(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入文档失败：%v", err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取失败：%v", err)
	}
	return string(b)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func testConfig(root string) config.EffectiveConfig {
	return config.EffectiveConfig{
		Root:     root,
		Template: "num smart_actor",
		Workers:  2,
		DocExt:   ".nfo",
		DoActor:  true,
		DoSeries: true,
		DoRename: true,
	}
}

func testTables() mapping.Tables {
	return mapping.Tables{
		Actor:  mapping.NewActorMap(map[string]string{"エマ": "Emma"}),
		Series: mapping.NewSeriesMap(map[string]string{"PRED-001": "Premium"}),
	}
}

type streams struct {
	detail bytes.Buffer
	ui     bytes.Buffer
}

func (s *streams) sink() *audit.Sink { return audit.New(&s.detail, &s.ui) }

func (s *streams) uiLines() []string {
	out := strings.TrimRight(s.ui.String(), "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// uiHas 判断 UI 流中是否有关于 leaf 的行。
func (s *streams) uiHas(leaf string) bool {
	for _, l := range s.uiLines() {
		if strings.Contains(l, " leaf="+leaf+" ") || strings.Contains(l, ` leaf="`+leaf+`" `) {
			return true
		}
	}
	return false
}

const canonicalDoc = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<movie>
  <num>X-1</num>
  <actor>
    <name>A</name>
    <type>Actor</type>
  </actor>
</movie>
`
