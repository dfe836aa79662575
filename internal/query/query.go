// Package query 提供基于字段视图的过滤谓词与排序。所有排序都是稳定的。
package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/John-Robertt/avnfo/internal/domain"
)

// Row 是一条可过滤/排序的记录。
type Row struct {
	Leaf   domain.Leaf
	Fields domain.Fields
}

// Cond 是谓词条件。
type Cond string

const (
	Contains    Cond = "contains"
	NotContains Cond = "not-contains"
	GreaterThan Cond = "gt"
	LessThan    Cond = "lt"
)

var condAliases = map[string]Cond{
	"contains":     Contains,
	"~":            Contains,
	"not-contains": NotContains,
	"not_contains": NotContains,
	"!~":           NotContains,
	"gt":           GreaterThan,
	">":            GreaterThan,
	"greater-than": GreaterThan,
	"lt":           LessThan,
	"<":            LessThan,
	"less-than":    LessThan,
}

// Predicate 是单个过滤条件。
type Predicate struct {
	Field string
	Cond  Cond
	Value string
}

// ParsePredicate 解析 "field:cond:value"（value 中允许出现 ':'）。
func ParsePredicate(s string) (Predicate, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Predicate{}, fmt.Errorf("过滤条件格式应为 field:cond:value，实际 %q", s)
	}
	c, ok := condAliases[strings.ToLower(strings.TrimSpace(parts[1]))]
	if !ok {
		return Predicate{}, fmt.Errorf("未知条件 %q（可用：contains / not-contains / gt / lt）", parts[1])
	}
	p := Predicate{Field: strings.ToLower(strings.TrimSpace(parts[0])), Cond: c, Value: parts[2]}
	if err := p.Validate(); err != nil {
		return Predicate{}, err
	}
	return p, nil
}

// Validate 校验字段与条件的组合：gt/lt 只适用于 rating，且比较值必须是数字。
func (p Predicate) Validate() error {
	if _, ok := (domain.Fields{}).Value(p.Field); !ok {
		return fmt.Errorf("未知字段 %q", p.Field)
	}
	switch p.Cond {
	case Contains, NotContains:
		return nil
	case GreaterThan, LessThan:
		if p.Field != "rating" {
			return fmt.Errorf("条件 %s 只适用于 rating", p.Cond)
		}
		if _, ok := domain.ParseRating(p.Value); !ok {
			return fmt.Errorf("比较值不是数字：%q", p.Value)
		}
		return nil
	default:
		return fmt.Errorf("未知条件 %q", p.Cond)
	}
}

// Match 判断记录是否满足谓词。字符串比较大小写不敏感；数值解析失败时不匹配。
func (p Predicate) Match(f domain.Fields) bool {
	v, ok := f.Value(p.Field)
	if !ok {
		return false
	}
	switch p.Cond {
	case Contains, NotContains:
		// Caser 有状态，不能跨 goroutine 共享。
		fold := cases.Fold()
		hit := strings.Contains(fold.String(v), fold.String(p.Value))
		return hit == (p.Cond == Contains)
	case GreaterThan, LessThan:
		a, ok1 := domain.ParseRating(v)
		b, ok2 := domain.ParseRating(p.Value)
		if !ok1 || !ok2 {
			return false
		}
		if p.Cond == GreaterThan {
			return a > b
		}
		return a < b
	default:
		return false
	}
}

// MatchAll 判断记录是否满足全部谓词（空列表视为满足）。
func MatchAll(f domain.Fields, preds []Predicate) bool {
	for _, p := range preds {
		if !p.Match(f) {
			return false
		}
	}
	return true
}

// Filter 返回满足全部谓词的记录（保持原顺序）。
func Filter(rows []Row, preds ...Predicate) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if MatchAll(r.Fields, preds) {
			out = append(out, r)
		}
	}
	return out
}

// Order 是排序方式。
type Order string

const (
	ByFilename Order = "filename"
	ByActors   Order = "actors"
	BySeries   Order = "series"
	ByRating   Order = "rating"
	ByRelease  Order = "release"
)

// ParseOrder 解析排序名；空串表示不排序。
func ParseOrder(s string) (Order, error) {
	switch o := Order(strings.ToLower(strings.TrimSpace(s))); o {
	case "", ByFilename, ByActors, BySeries, ByRating, ByRelease:
		return o, nil
	case "actor":
		return ByActors, nil
	case "date", "premiered":
		return ByRelease, nil
	default:
		return "", fmt.Errorf("未知排序 %q（可用：filename / actors / series / rating / release）", s)
	}
}

// Sort 按 o 稳定排序 rows：
// - filename、actors（逗号连接）：升序
// - series：升序，缺失排在最后
// - rating：降序，缺失按 0
// - release：降序，无法解析的日期排在最后
func Sort(rows []Row, o Order) {
	switch o {
	case ByFilename:
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Fields.Filename < rows[j].Fields.Filename })
	case ByActors:
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Fields.Actor() < rows[j].Fields.Actor() })
	case BySeries:
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := rows[i].Fields.Series, rows[j].Fields.Series
			if (a == "") != (b == "") {
				return b == ""
			}
			return a < b
		})
	case ByRating:
		sort.SliceStable(rows, func(i, j int) bool { return ratingOrZero(rows[i].Fields) > ratingOrZero(rows[j].Fields) })
	case ByRelease:
		// SliceStable 会移动元素，先把解析结果绑到元素上再排。
		type keyed struct {
			row Row
			t   time.Time
			ok  bool
		}
		tmp := make([]keyed, len(rows))
		for i := range rows {
			t, ok := ParseDate(rows[i].Fields.Release)
			tmp[i] = keyed{row: rows[i], t: t, ok: ok}
		}
		sort.SliceStable(tmp, func(i, j int) bool {
			if tmp[i].ok != tmp[j].ok {
				return tmp[i].ok
			}
			return tmp[i].t.After(tmp[j].t)
		})
		for i := range tmp {
			rows[i] = tmp[i].row
		}
	}
}

func ratingOrZero(f domain.Fields) float64 {
	v, ok := domain.ParseRating(f.Rating)
	if !ok {
		return 0
	}
	return v
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "2006.01.02", "20060102", "2006-01", "2006"}

// ParseDate 解析常见的发行日期写法。
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
