// Package dupes 按某个字段检测重复文档。
package dupes

import (
	"context"
	"fmt"
	"strings"

	"github.com/John-Robertt/avnfo/internal/app"
	"github.com/John-Robertt/avnfo/internal/domain"
)

// Field 是分组所用的字段。
type Field string

const (
	FieldNum    Field = "num"
	FieldSeries Field = "series"
)

// ParseField 解析 --by 参数。
func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldNum, FieldSeries:
		return f, nil
	case "number":
		return FieldNum, nil
	default:
		return "", fmt.Errorf("不支持的分组字段：%q（可选 num、series）", s)
	}
}

// Report 是一次重复检测的对外输出。
type Report struct {
	Root  string `json:"root"`
	Field Field  `json:"field"`

	Total     int  `json:"total"`
	Completed int  `json:"completed"`
	Cancelled bool `json:"cancelled"`

	Groups   []domain.DupeGroup  `json:"groups"`
	Failures []domain.ItemResult `json:"failures"`
}

// Rows 把全部分组展开为 (key, doc) 行。
func (r Report) Rows() []domain.DupeRow {
	var out []domain.DupeRow
	for _, g := range r.Groups {
		out = append(out, g.Rows()...)
	}
	return out
}

// Detect 扫描 root，按 field 分组，并返回所有大小 >= 2 的组。
func Detect(ctx context.Context, root string, field Field, opts app.CollectOptions) (Report, error) {
	recs, err := app.Collect(ctx, root, opts)
	if err != nil {
		return Report{}, err
	}

	keyed := make([]app.KeyedDoc, 0, len(recs.Rows))
	for _, r := range recs.Rows {
		k := r.Fields.Num
		if field == FieldSeries {
			k = r.Fields.Series
		}
		keyed = append(keyed, app.KeyedDoc{Key: k, Doc: app.RelDoc(root, r.Leaf.Doc)})
	}

	rep := Report{
		Root:      root,
		Field:     field,
		Total:     recs.Total,
		Completed: recs.Completed,
		Cancelled: recs.Cancelled,
		Groups:    app.GroupByKey(keyed),
		Failures:  recs.Failures,
	}
	if rep.Failures == nil {
		rep.Failures = []domain.ItemResult{}
	}
	return rep, nil
}
