// Package planner 为叶子目录生成确定性的重命名计划（只读文件系统，不做任何移动）。
package planner

import (
	"os"
	"path/filepath"

	"github.com/John-Robertt/avnfo/internal/domain"
	"github.com/John-Robertt/avnfo/internal/naming"
)

// ReasonNestedLeaves 表示目录下还有其它叶子，重命名会让它们的路径失效。
const ReasonNestedLeaves = "nested_leaves"

// PlanRename 根据期望目录名生成计划。
//
// - expected 为空、等于当前名，或叶子就是扫描根目录：Noop
// - 目录下还有其它叶子：Noop，Reason=ReasonNestedLeaves
// - 同级已存在名为 expected 的目录（且不是同一个目录）：*naming.RenameConflictError
// - 仅大小写不同且文件系统大小写不敏感（同一目录）：照常重命名
func PlanRename(leaf domain.Leaf, expected string) (domain.RenamePlan, error) {
	src := leaf.Dir
	cur := filepath.Base(src)
	if leaf.IsRoot() || expected == "" || expected == cur {
		return domain.RenamePlan{SrcAbs: src, DstAbs: src, Noop: true}, nil
	}
	if leaf.HasSubLeaves {
		return domain.RenamePlan{SrcAbs: src, DstAbs: src, Noop: true, Reason: ReasonNestedLeaves}, nil
	}

	dst := filepath.Join(filepath.Dir(src), expected)
	dstInfo, err := os.Lstat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.RenamePlan{SrcAbs: src, DstAbs: dst}, nil
		}
		return domain.RenamePlan{}, err
	}

	srcInfo, err := os.Lstat(src)
	if err != nil {
		return domain.RenamePlan{}, err
	}
	if os.SameFile(srcInfo, dstInfo) {
		return domain.RenamePlan{SrcAbs: src, DstAbs: dst}, nil
	}
	return domain.RenamePlan{}, &naming.RenameConflictError{Src: src, Dst: dst}
}

// RelTarget 返回计划目标相对 root 的路径（用于报告）；Noop 返回空串。
func RelTarget(root string, p domain.RenamePlan) string {
	if p.Noop {
		return ""
	}
	rel, err := filepath.Rel(root, p.DstAbs)
	if err != nil {
		return p.DstAbs
	}
	return filepath.ToSlash(rel)
}
