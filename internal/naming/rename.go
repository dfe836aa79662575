package naming

import (
	"errors"
	"fmt"

	"github.com/John-Robertt/avnfo/internal/domain"
	"github.com/John-Robertt/avnfo/internal/infra/fsx"
)

// RenameConflictError 表示目标同级目录已存在，重命名被放弃。
type RenameConflictError struct {
	Src string
	Dst string
}

func (e *RenameConflictError) Error() string {
	return fmt.Sprintf("rename_conflict：目标已存在 %q（源 %q）", e.Dst, e.Src)
}

// IsRenameConflict 判断 err 是否为重命名冲突。
func IsRenameConflict(err error) bool {
	var e *RenameConflictError
	return errors.As(err, &e)
}

// Apply 执行重命名计划（单次原子 move）。Noop 计划直接返回。
func Apply(p domain.RenamePlan) error {
	if p.Noop {
		return nil
	}
	err := fsx.RenameDir(p.SrcAbs, p.DstAbs)
	if err == nil {
		return nil
	}
	var te *fsx.TargetExistsError
	if errors.As(err, &te) {
		return &RenameConflictError{Src: p.SrcAbs, Dst: p.DstAbs}
	}
	return err
}
