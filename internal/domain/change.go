package domain

// ChangeCounts 统计一次改写各类修改的次数。
type ChangeCounts struct {
	Actor  int `json:"actor"`
	Tag    int `json:"tag"`
	Genre  int `json:"genre"`
	Series int `json:"series"`
	Set    int `json:"set"`
	Repair int `json:"repair"`
	Rating int `json:"rating"`
	// Removed 是被删除的重复/空节点数（例如多余的 "系列:" tag）。
	Removed   int  `json:"removed"`
	Reordered bool `json:"reordered"`
}

// Modified 表示这次改写是否改变了文档（任一计数非零或子节点顺序变化）。
func (c ChangeCounts) Modified() bool {
	return c.Actor != 0 || c.Tag != 0 || c.Genre != 0 || c.Series != 0 || c.Set != 0 ||
		c.Repair != 0 || c.Rating != 0 || c.Removed != 0 || c.Reordered
}

// FieldChange 记录单个字段的 before/after。
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// RenamePlan 描述一次目录重命名（只描述 src/dst；执行由 fsx 负责）。
type RenamePlan struct {
	SrcAbs string
	DstAbs string

	// Noop 表示无需（或不允许）重命名。
	Noop bool

	// Reason 非空表示期望名与当前名不同，但重命名被跳过的原因。
	Reason string
}
