package naming

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/avnfo/internal/domain"
)

func TestApply_TargetExistsIsConflict(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "raw-title")
	dst := filepath.Join(root, "ABC-1 A,B")
	for _, d := range []string{src, dst} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatalf("创建目录失败：%v", err)
		}
	}

	err := Apply(domain.RenamePlan{SrcAbs: src, DstAbs: dst})
	if !IsRenameConflict(err) {
		t.Fatalf("期望 rename_conflict，实际 %v", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("冲突时源目录应保持不变：%v", err)
	}
}

func TestApply_Noop(t *testing.T) {
	if err := Apply(domain.RenamePlan{SrcAbs: "/nope", DstAbs: "/nope", Noop: true}); err != nil {
		t.Fatalf("Noop 不应报错：%v", err)
	}
}
