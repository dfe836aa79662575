package domain

// DupeGroup 是一组共享同一键值的文档。Docs 为相对扫描根目录的路径，按字典序排列。
type DupeGroup struct {
	Key  string   `json:"key"`
	Docs []string `json:"docs"`
}

// DupeRow 是重复报告中的一行 (key, document_path)。
type DupeRow struct {
	Key string `json:"key"`
	Doc string `json:"doc"`
}

// Rows 把分组展开为行。
func (g DupeGroup) Rows() []DupeRow {
	out := make([]DupeRow, 0, len(g.Docs))
	for _, d := range g.Docs {
		out = append(out, DupeRow{Key: g.Key, Doc: d})
	}
	return out
}
