package app

import (
	"sort"
	"strings"

	"github.com/John-Robertt/avnfo/internal/domain"
)

// KeyedDoc 是一份文档及其分组键。
type KeyedDoc struct {
	Key string
	Doc string
}

// GroupByKey 按键把文档分组，只返回大小 >= 2 的组。
//
// - 键先 TrimSpace，空键被忽略
// - 组稳定排序：按 Key 字典序
// - 组内 Docs 稳定排序：按路径字典序
func GroupByKey(docs []KeyedDoc) []domain.DupeGroup {
	index := make(map[string]int, 128)
	groups := make([]domain.DupeGroup, 0, 128)

	for _, d := range docs {
		k := strings.TrimSpace(d.Key)
		if k == "" {
			continue
		}
		if idx, ok := index[k]; ok {
			groups[idx].Docs = append(groups[idx].Docs, d.Doc)
			continue
		}
		index[k] = len(groups)
		groups = append(groups, domain.DupeGroup{Key: k, Docs: []string{d.Doc}})
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g.Docs) >= 2 {
			sort.Strings(g.Docs)
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
