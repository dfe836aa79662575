package domain

// Leaf 描述一次扫描得到的叶子目录（直接包含元数据文档的目录）。
//
// 不变量：
// - Dir/Doc 必须是 clean + absolute
// - 同一次扫描中每个 Dir 只出现一次
type Leaf struct {
	Dir string
	Doc string

	// RelParts 是 Dir 相对扫描根目录的路径分段（根目录本身为空切片）。
	RelParts []string

	// ExtraDocs 是同目录下未被选中的其它文档（按名称排序）。
	ExtraDocs []string

	// HasSubLeaves 表示 Dir 之下还有其它叶子；这类目录不允许重命名。
	HasSubLeaves bool
}

// IsRoot 表示叶子就是扫描根目录本身（此时不允许重命名）。
func (l Leaf) IsRoot() bool { return len(l.RelParts) == 0 }
