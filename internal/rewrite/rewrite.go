// Package rewrite 对解析后的文档做别名替换、系列补全与结构修复，并按固定顺序重排子元素。
//
// 每一步都是幂等的：对同一份映射表连续改写两次，第二次不会产生任何修改。
package rewrite

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/John-Robertt/avnfo/internal/domain"
	"github.com/John-Robertt/avnfo/internal/extract"
	"github.com/John-Robertt/avnfo/internal/mapping"
	"github.com/John-Robertt/avnfo/internal/nfo"
)

// SeriesPrefix 是系列 tag/genre 的前缀。
const SeriesPrefix = "系列:"

// DefaultActorType 是缺省的 actor/type。
const DefaultActorType = "Actor"

// Options 是一次改写的输入。
type Options struct {
	Actors mapping.ActorMap
	Series mapping.SeriesMap

	DoActor  bool
	DoSeries bool

	// Num 非空时作为识别号使用（例如从文件名推断出的识别号）；否则取文档 <num>。
	Num string
}

// Report 是一次改写的变更报告。
type Report struct {
	Counts  domain.ChangeCounts
	Changes []domain.FieldChange
}

// Modified 表示文档是否被修改。
func (r Report) Modified() bool { return r.Counts.Modified() }

func (r *Report) note(field, before, after string) {
	r.Changes = append(r.Changes, domain.FieldChange{Field: field, Before: before, After: after})
}

// Error 包装改写阶段的失败（包括 panic）。
type Error struct {
	Step string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("改写失败（%s）：%v", e.Step, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Rewrite 原地改写 doc，返回变更报告。返回错误时 doc 可能已被部分修改，调用方不得写回。
func Rewrite(doc *nfo.Document, opts Options) (rep Report, err error) {
	if doc == nil || doc.Root == nil {
		return Report{}, &Error{Step: "input", Err: errors.New("文档为空")}
	}

	step := "input"
	defer func() {
		if r := recover(); r != nil {
			rep = Report{}
			err = &Error{Step: step, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	root := doc.Root
	if opts.DoActor {
		step = "actor_alias"
		substituteActorNames(root, opts.Actors, &rep)
		step = "tag_alias"
		substituteTexts(root, "tag", opts.Actors, &rep, &rep.Counts.Tag)
		substituteTexts(root, "genre", opts.Actors, &rep, &rep.Counts.Genre)
	}
	if opts.DoSeries {
		step = "series"
		num := strings.TrimSpace(opts.Num)
		if num == "" {
			num = extract.First(root, "num")
		}
		if s, ok := opts.Series.Lookup(num); ok {
			enrichSeries(root, s, &rep)
		}
	}

	step = "actor_repair"
	var resolve func(string) string
	if opts.DoActor {
		resolve = opts.Actors.Lookup
	}
	repairActors(root, resolve, &rep)

	step = "set_repair"
	repairSets(root, &rep)

	step = "rating"
	normalizeRating(root, &rep)

	step = "reorder"
	rep.Counts.Reordered = Reorder(root)
	return rep, nil
}

func substituteActorNames(root *nfo.Node, m mapping.ActorMap, rep *Report) {
	for _, a := range root.ChildrenByTag("actor") {
		for _, n := range a.ChildrenByTag("name") {
			before := n.TrimmedText()
			if after, ok := m.Resolve(before); ok {
				n.Text = after
				rep.Counts.Actor++
				rep.note("actor/name", before, after)
			}
		}
	}
}

// substituteTexts 处理用演员名充当 tag/genre 的写法。
func substituteTexts(root *nfo.Node, tag string, m mapping.ActorMap, rep *Report, counter *int) {
	for _, n := range root.ChildrenByTag(tag) {
		if len(n.Children) > 0 {
			continue
		}
		before := n.TrimmedText()
		if after, ok := m.Resolve(before); ok {
			n.Text = after
			*counter++
			rep.note(tag, before, after)
		}
	}
}

func enrichSeries(root *nfo.Node, s string, rep *Report) {
	// series
	if n := root.Child("series"); n == nil {
		root.AppendChild(nfo.NewNode("series", s))
		rep.Counts.Series++
		rep.note("series", "", s)
	} else if before := n.TrimmedText(); before != s || len(n.Children) > 0 {
		n.Text = s
		n.Children = nil
		rep.Counts.Series++
		rep.note("series", before, s)
	}

	// set/name
	set := root.Child("set")
	if set == nil {
		set = &nfo.Node{Tag: "set"}
		set.AppendChild(nfo.NewNode("name", s))
		root.AppendChild(set)
		rep.Counts.Set++
		rep.note("set/name", "", s)
	} else {
		name := normalizeNamed(set, "set", nil, rep)
		if before := name.TrimmedText(); before != s {
			name.Text = s
			rep.Counts.Set++
			rep.note("set/name", before, s)
		}
	}

	label := SeriesPrefix + " " + s
	ensureSingleSeriesLabel(root, "tag", label, rep, &rep.Counts.Tag)
	ensureSingleSeriesLabel(root, "genre", label, rep, &rep.Counts.Genre)
}

// ensureSingleSeriesLabel 保证恰好一个以 "系列:" 开头的 tag（或 genre），且值为 label。
// 多余的会被删除并记入变更。
func ensureSingleSeriesLabel(root *nfo.Node, tag, label string, rep *Report, counter *int) {
	var keep *nfo.Node
	for _, n := range root.ChildrenByTag(tag) {
		text := n.TrimmedText()
		if !strings.HasPrefix(text, SeriesPrefix) {
			continue
		}
		if keep == nil {
			keep = n
			if text != label {
				n.Text = label
				*counter++
				rep.note(tag, text, label)
			}
			continue
		}
		root.RemoveChild(n)
		rep.Counts.Removed++
		rep.note(tag, text, "")
	}
	if keep == nil {
		root.AppendChild(nfo.NewNode(tag, label))
		*counter++
		rep.note(tag, "", label)
	}
}

// normalizeNamed 让 parent（actor 或 set）恰好有一个 name 子元素且不带直接文本，返回该 name。
//
// - 只有直接文本：迁移为新的第一个 name（resolve 非 nil 时先做别名映射）
// - 直接文本 + 已有 name：name 优先，直接文本被丢弃
// - 没有 name 也没有文本：补一个空 name
// - 多余的 name 被删除
func normalizeNamed(parent *nfo.Node, field string, resolve func(string) string, rep *Report) *nfo.Node {
	names := parent.ChildrenByTag("name")
	text := parent.TrimmedText()

	switch {
	case text != "" && len(names) == 0:
		v := text
		if resolve != nil {
			v = resolve(text)
		}
		n := nfo.NewNode("name", v)
		parent.InsertChild(0, n)
		names = []*nfo.Node{n}
		rep.Counts.Repair++
		rep.note(field+"/name", text, v)
		if v != text {
			rep.Counts.Actor++
		}
	case text != "":
		rep.Counts.Repair++
		rep.note(field, text, "")
	case len(names) == 0:
		n := nfo.NewNode("name", "")
		parent.InsertChild(0, n)
		names = []*nfo.Node{n}
		rep.Counts.Repair++
		rep.note(field+"/name", "", "")
	}
	if text != "" {
		parent.Text = ""
	}

	for _, extra := range names[1:] {
		parent.RemoveChild(extra)
		rep.Counts.Removed++
		rep.note(field+"/name", extra.TrimmedText(), "")
	}
	return names[0]
}

func isEmptyElement(n *nfo.Node) bool {
	return len(n.Children) == 0 && !n.HasDirectText() && len(n.Attrs) == 0
}

func repairActors(root *nfo.Node, resolve func(string) string, rep *Report) {
	for _, a := range root.ChildrenByTag("actor") {
		if isEmptyElement(a) {
			root.RemoveChild(a)
			rep.Counts.Removed++
			rep.note("actor", "", "")
			continue
		}
		normalizeNamed(a, "actor", resolve, rep)

		types := a.ChildrenByTag("type")
		if len(types) == 0 {
			a.AppendChild(nfo.NewNode("type", DefaultActorType))
			rep.Counts.Repair++
			rep.note("actor/type", "", DefaultActorType)
			continue
		}
		if t := types[0]; t.TrimmedText() == "" && len(t.Children) == 0 {
			t.Text = DefaultActorType
			rep.Counts.Repair++
			rep.note("actor/type", "", DefaultActorType)
		}
		for _, extra := range types[1:] {
			a.RemoveChild(extra)
			rep.Counts.Removed++
			rep.note("actor/type", extra.TrimmedText(), "")
		}
	}
}

func repairSets(root *nfo.Node, rep *Report) {
	for _, s := range root.ChildrenByTag("set") {
		if isEmptyElement(s) {
			root.RemoveChild(s)
			rep.Counts.Removed++
			rep.note("set", "", "")
			continue
		}
		normalizeNamed(s, "set", nil, rep)
	}
}

// MaxRating 是评分上限（闭区间 [0, 9.9]）。
const MaxRating = 9.9

// NormalizeRating 把评分四舍五入到一位小数并裁剪到 [0, MaxRating]。
func NormalizeRating(v float64) float64 {
	v = math.Round(v*10) / 10
	if v > MaxRating {
		v = MaxRating
	}
	if v <= 0 {
		// 同时消掉 -0，否则会输出 "-0.0"。
		v = 0
	}
	return v
}

// normalizeRating：rating 可解析时重排为一位小数，并同步 criticrating = round(rating*10)。
// rating 缺失、为空或非数字时不碰 criticrating。
func normalizeRating(root *nfo.Node, rep *Report) {
	r := root.Child("rating")
	if r == nil || len(r.Children) > 0 {
		return
	}
	raw := r.TrimmedText()
	v, ok := domain.ParseRating(raw)
	if !ok {
		return
	}
	v = NormalizeRating(v)

	formatted := strconv.FormatFloat(v, 'f', 1, 64)
	if raw != formatted {
		r.Text = formatted
		rep.Counts.Rating++
		rep.note("rating", raw, formatted)
	}

	critic := strconv.Itoa(int(math.Round(v * 10)))
	c := root.Child("criticrating")
	if c == nil {
		root.AppendChild(nfo.NewNode("criticrating", critic))
		rep.Counts.Rating++
		rep.note("criticrating", "", critic)
		return
	}
	if before := c.TrimmedText(); before != critic || len(c.Children) > 0 {
		c.Text = critic
		c.Children = nil
		rep.Counts.Rating++
		rep.note("criticrating", before, critic)
	}
}
