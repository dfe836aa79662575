package scan

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestScanLeaves_FindsLeavesAndExcludesLog(t *testing.T) {
	root := t.TempDir()

	touch(t, filepath.Join(root, "log", "old", "x.nfo"))
	touch(t, filepath.Join(root, ".trash", "y.nfo"))
	touch(t, filepath.Join(root, "studio", "ABC-1", "ABC-1.nfo"))
	touch(t, filepath.Join(root, "studio", "ABC-1", "poster.jpg"))
	touch(t, filepath.Join(root, "flat", "movie.NFO"))
	touch(t, filepath.Join(root, "empty", "cover.jpg"))

	got, err := ScanLeaves(root, Options{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 2 {
		t.Fatalf("期望 2 个叶子，实际 %d：%+v", len(got), got)
	}
	if Rel(got[0]) != "flat" || filepath.Base(got[0].Doc) != "movie.NFO" {
		t.Fatalf("后缀应大小写不敏感：%+v", got[0])
	}
	if !reflect.DeepEqual(got[1].RelParts, []string{"studio", "ABC-1"}) {
		t.Fatalf("RelParts 不符合预期：%v", got[1].RelParts)
	}
	if got[1].Dir != filepath.Join(root, "studio", "ABC-1") {
		t.Fatalf("Dir 不符合预期：%q", got[1].Dir)
	}
}

func TestScanLeaves_ExcludeDirsFromConfig(t *testing.T) {
	root := t.TempDir()

	touch(t, filepath.Join(root, "temp", "a", "A-01.nfo"))
	touch(t, filepath.Join(root, "ok", "B-02.nfo"))

	got, err := ScanLeaves(root, Options{ExcludeDirs: []string{"temp"}})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 || Rel(got[0]) != "ok" {
		t.Fatalf("期望只剩 ok，实际 %+v", got)
	}
}

func TestScanLeaves_MultipleDocsPickFirst(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "m", "b.nfo"))
	touch(t, filepath.Join(root, "m", "a.nfo"))

	got, err := ScanLeaves(root, Options{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 {
		t.Fatalf("同一目录只应出现一次，实际 %d", len(got))
	}
	if filepath.Base(got[0].Doc) != "a.nfo" || len(got[0].ExtraDocs) != 1 {
		t.Fatalf("应选名称最小的文档：%+v", got[0])
	}
}

func TestScanLeaves_RootIsLeaf(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "x.nfo"))

	got, err := ScanLeaves(root, Options{DocExt: "nfo"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 || !got[0].IsRoot() || Rel(got[0]) != "." {
		t.Fatalf("根目录本身应作为叶子：%+v", got)
	}
}

func TestScanLeaves_MissingRoot(t *testing.T) {
	if _, err := ScanLeaves(filepath.Join(t.TempDir(), "nope"), Options{}); err == nil {
		t.Fatalf("期望错误")
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}

func TestScanLeaves_MarksLeavesWithSubLeaves(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "studio", "a.nfo"))
	touch(t, filepath.Join(root, "studio", "sub", "deep", "b.nfo"))
	touch(t, filepath.Join(root, "studio x", "c.nfo"))
	touch(t, filepath.Join(root, "top.nfo"))

	got, err := ScanLeaves(root, Options{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	marks := make(map[string]bool, len(got))
	for _, l := range got {
		marks[Rel(l)] = l.HasSubLeaves
	}
	want := map[string]bool{".": true, "studio": true, "studio/sub/deep": false, "studio x": false}
	if !reflect.DeepEqual(marks, want) {
		t.Fatalf("子叶子标记不符合预期：%v", marks)
	}
}
