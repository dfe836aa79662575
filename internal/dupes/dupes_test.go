package dupes

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/John-Robertt/avnfo/internal/app"
	"github.com/John-Robertt/avnfo/internal/domain"
	"github.com/John-Robertt/avnfo/internal/extract"
)

func writeDoc(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
}

func library(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeDoc(t, filepath.Join(root, "a", "m.nfo"), `<movie><num>ABC-1</num><series>S</series></movie>`)
	writeDoc(t, filepath.Join(root, "b", "m.nfo"), `<movie><num> ABC-1 </num><series>S</series></movie>`)
	writeDoc(t, filepath.Join(root, "c", "m.nfo"), `<movie><num>ABC-2</num><series>S</series></movie>`)
	writeDoc(t, filepath.Join(root, "d", "m.nfo"), `<movie><num>ABC-3</num></movie>`)
	writeDoc(t, filepath.Join(root, "e", "m.nfo"), `<movie><num>ABC-4</num></movie>`)
	return root
}

func TestDetect_ByNum(t *testing.T) {
	root := library(t)
	rep, err := Detect(context.Background(), root, FieldNum, app.CollectOptions{Workers: 2})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := []domain.DupeGroup{{Key: "ABC-1", Docs: []string{"a/m.nfo", "b/m.nfo"}}}
	if !reflect.DeepEqual(rep.Groups, want) {
		t.Fatalf("分组不符合预期：%+v", rep.Groups)
	}
	if rep.Total != 5 || rep.Completed != 5 {
		t.Fatalf("计数不符合预期：%+v", rep)
	}
}

func TestDetect_BySeriesIgnoresMissing(t *testing.T) {
	root := library(t)
	rep, err := Detect(context.Background(), root, FieldSeries, app.CollectOptions{Workers: 4})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(rep.Groups) != 1 || rep.Groups[0].Key != "S" || len(rep.Groups[0].Docs) != 3 {
		t.Fatalf("分组不符合预期：%+v", rep.Groups)
	}
	if rows := rep.Rows(); len(rows) != 3 || rows[2].Doc != "c/m.nfo" {
		t.Fatalf("展开行不符合预期：%+v", rows)
	}
}

func TestDetect_InferredNum(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, filepath.Join(root, "x", "ABC-9.nfo"), `<movie/>`)
	writeDoc(t, filepath.Join(root, "y", "m.nfo"), `<movie><num>ABC-9</num></movie>`)

	rep, err := Detect(context.Background(), root, FieldNum, app.CollectOptions{Extract: extract.Options{InferNum: true}})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(rep.Groups) != 1 || rep.Groups[0].Key != "ABC-9" {
		t.Fatalf("推断的识别号应参与分组：%+v", rep.Groups)
	}
}

func TestParseField(t *testing.T) {
	for in, want := range map[string]Field{"num": FieldNum, "NUMBER": FieldNum, " series ": FieldSeries} {
		got, err := ParseField(in)
		if err != nil || got != want {
			t.Fatalf("ParseField(%q)=%q,%v", in, got, err)
		}
	}
	if _, err := ParseField("title"); err == nil {
		t.Fatalf("期望错误")
	}
}
