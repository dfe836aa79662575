package rewrite

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/John-Robertt/avnfo/internal/mapping"
	"github.com/John-Robertt/avnfo/internal/nfo"
)

func mustParse(t *testing.T, s string) *nfo.Document {
	t.Helper()
	doc, err := nfo.Parse([]byte(s))
	if err != nil {
		t.Fatalf("解析失败：%v", err)
	}
	return doc
}

func mustRewrite(t *testing.T, doc *nfo.Document, opts Options) Report {
	t.Helper()
	rep, err := Rewrite(doc, opts)
	if err != nil {
		t.Fatalf("改写失败：%v", err)
	}
	return rep
}

func allPasses(actors, series map[string]string) Options {
	return Options{
		Actors:   mapping.NewActorMap(actors),
		Series:   mapping.NewSeriesMap(series),
		DoActor:  true,
		DoSeries: true,
	}
}

func tags(root *nfo.Node) []string {
	out := make([]string, 0, len(root.Children))
	for _, c := range root.Children {
		out = append(out, c.Tag)
	}
	return out
}

func TestRewrite_ActorAliasMinimal(t *testing.T) {
	doc := mustParse(t, `<movie><actor><name>エマ</name></actor></movie>`)
	rep := mustRewrite(t, doc, allPasses(map[string]string{"エマ": "Emma"}, nil))

	want := nfo.Header + `<movie>
  <actor>
    <name>Emma</name>
    <type>Actor</type>
  </actor>
</movie>
`
	if got := string(nfo.Encode(doc)); got != want {
		t.Fatalf("输出不符合预期：\n%s", got)
	}
	if rep.Counts.Actor != 1 || rep.Counts.Repair != 1 || !rep.Modified() {
		t.Fatalf("计数不符合预期：%+v", rep.Counts)
	}
}

func TestRewrite_SeriesEnrichment(t *testing.T) {
	doc := mustParse(t, `<movie><title>x</title><num>PRED-001</num></movie>`)
	rep := mustRewrite(t, doc, allPasses(nil, map[string]string{"PRED-001": "Premium"}))

	want := nfo.Header + `<movie>
  <num>PRED-001</num>
  <title>x</title>
  <set>
    <name>Premium</name>
  </set>
  <series>Premium</series>
  <tag>系列: Premium</tag>
  <genre>系列: Premium</genre>
</movie>
`
	if got := string(nfo.Encode(doc)); got != want {
		t.Fatalf("输出不符合预期：\n%s", got)
	}
	c := rep.Counts
	if c.Series != 1 || c.Set != 1 || c.Tag != 1 || c.Genre != 1 || !c.Reordered {
		t.Fatalf("计数不符合预期：%+v", c)
	}
}

func TestRewrite_SeriesLookupUsesOverrideNum(t *testing.T) {
	doc := mustParse(t, `<movie><title>x</title></movie>`)
	opts := allPasses(nil, map[string]string{"PRED-001": "Premium"})
	opts.Num = "PRED-001"
	mustRewrite(t, doc, opts)
	if got := doc.Root.ChildText("series"); got != "Premium" {
		t.Fatalf("期望使用外部识别号补全系列，实际 %q", got)
	}
}

func TestRewrite_SeriesLabelsDeduplicated(t *testing.T) {
	doc := mustParse(t, `<movie>
  <num>pred-001</num>
  <series>Old</series>
  <set>Old</set>
  <tag>系列: Old</tag>
  <tag>普通</tag>
  <tag>系列:Another</tag>
  <genre>系列: Premium</genre>
  <genre>系列: Premium</genre>
</movie>`)
	rep := mustRewrite(t, doc, allPasses(nil, map[string]string{"PRED-001": "Premium"}))
	root := doc.Root

	if root.ChildText("series") != "Premium" {
		t.Fatalf("series 应更新为 Premium")
	}
	set := root.Child("set")
	if set.HasDirectText() || len(set.ChildrenByTag("name")) != 1 || set.ChildText("name") != "Premium" {
		t.Fatalf("set 结构不符合预期：%+v", set)
	}
	var seriesTags, seriesGenres []string
	for _, n := range root.ChildrenByTag("tag") {
		if strings.HasPrefix(n.TrimmedText(), SeriesPrefix) {
			seriesTags = append(seriesTags, n.TrimmedText())
		}
	}
	for _, n := range root.ChildrenByTag("genre") {
		if strings.HasPrefix(n.TrimmedText(), SeriesPrefix) {
			seriesGenres = append(seriesGenres, n.TrimmedText())
		}
	}
	if len(seriesTags) != 1 || seriesTags[0] != "系列: Premium" {
		t.Fatalf("系列 tag 应恰好一个，实际 %v", seriesTags)
	}
	if len(seriesGenres) != 1 || seriesGenres[0] != "系列: Premium" {
		t.Fatalf("系列 genre 应恰好一个，实际 %v", seriesGenres)
	}
	if len(root.ChildrenByTag("tag")) != 2 {
		t.Fatalf("普通 tag 应保留")
	}
	if rep.Counts.Removed != 2 {
		t.Fatalf("期望删除 2 个多余的系列标签，实际 %d", rep.Counts.Removed)
	}
	removed := 0
	for _, c := range rep.Changes {
		if (c.Field == "tag" || c.Field == "genre") && c.After == "" {
			removed++
		}
	}
	if removed != 2 {
		t.Fatalf("每次删除都应记录变更，实际 %d", removed)
	}
}

func TestRewrite_RatingNormalization(t *testing.T) {
	doc := mustParse(t, `<movie><rating>9.95</rating></movie>`)
	rep := mustRewrite(t, doc, allPasses(nil, nil))

	want := nfo.Header + `<movie>
  <rating>9.9</rating>
  <criticrating>99</criticrating>
</movie>
`
	if got := string(nfo.Encode(doc)); got != want {
		t.Fatalf("输出不符合预期：\n%s", got)
	}
	if rep.Counts.Rating != 2 {
		t.Fatalf("期望 rating 计数为 2，实际 %d", rep.Counts.Rating)
	}
}

func TestRewrite_RatingNonNumericLeavesCriticRating(t *testing.T) {
	for _, raw := range []string{"", "N/A"} {
		doc := mustParse(t, `<movie><rating>`+raw+`</rating><criticrating>42</criticrating></movie>`)
		rep := mustRewrite(t, doc, allPasses(nil, nil))
		if got := doc.Root.ChildText("criticrating"); got != "42" {
			t.Fatalf("rating=%q 时 criticrating 不应改变，实际 %q", raw, got)
		}
		if rep.Modified() {
			t.Fatalf("rating=%q 时不应有修改：%+v", raw, rep.Counts)
		}
	}
}

func TestNormalizeRating_Clamp(t *testing.T) {
	cases := map[float64]float64{9.95: 9.9, 10: 9.9, -1: 0, 7.25: 7.3, 0: 0}
	for in, want := range cases {
		if got := NormalizeRating(in); got != want {
			t.Fatalf("NormalizeRating(%v) = %v，期望 %v", in, got, want)
		}
	}
}

func TestRewrite_NegativeZeroRating(t *testing.T) {
	doc := mustParse(t, `<movie><rating>-0.04</rating></movie>`)
	mustRewrite(t, doc, allPasses(nil, nil))

	out := string(nfo.Encode(doc))
	if !strings.Contains(out, "<rating>0.0</rating>") || !strings.Contains(out, "<criticrating>0</criticrating>") {
		t.Fatalf("负零评分应输出为 0.0：\n%s", out)
	}
	if math.Signbit(NormalizeRating(-0.04)) {
		t.Fatalf("NormalizeRating 不应返回 -0")
	}
}

func TestRewrite_SetStructuralRepair(t *testing.T) {
	doc := mustParse(t, `<movie><set>OldValue</set></movie>`)
	rep := mustRewrite(t, doc, allPasses(nil, nil))

	want := nfo.Header + `<movie>
  <set>
    <name>OldValue</name>
  </set>
</movie>
`
	if got := string(nfo.Encode(doc)); got != want {
		t.Fatalf("输出不符合预期：\n%s", got)
	}
	c := rep.Counts
	if c.Repair != 1 || c.Actor+c.Tag+c.Genre+c.Series+c.Set+c.Rating+c.Removed != 0 {
		t.Fatalf("只应有一次结构修复：%+v", c)
	}
}

func TestRewrite_SetTextAndNameNameWins(t *testing.T) {
	doc := mustParse(t, `<movie><set>Text<name>Name</name></set></movie>`)
	rep := mustRewrite(t, doc, allPasses(nil, nil))

	set := doc.Root.Child("set")
	if set.HasDirectText() || set.ChildText("name") != "Name" {
		t.Fatalf("name 子元素应优先，实际 text=%q name=%q", set.Text, set.ChildText("name"))
	}
	found := false
	for _, c := range rep.Changes {
		if c.Field == "set" && c.Before == "Text" && c.After == "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("丢弃直接文本应记入变更：%+v", rep.Changes)
	}
}

func TestRewrite_ActorRepairs(t *testing.T) {
	doc := mustParse(t, `<movie>
  <actor>エマ</actor>
  <actor>Text<name>A</name><name>B</name><type></type><type>Other</type></actor>
  <actor>  </actor>
  <actor><thumb>x.jpg</thumb></actor>
</movie>`)
	mustRewrite(t, doc, allPasses(map[string]string{"エマ": "Emma"}, nil))

	actors := doc.Root.ChildrenByTag("actor")
	if len(actors) != 3 {
		t.Fatalf("空 actor 应被删除，实际剩 %d 个", len(actors))
	}
	for i, a := range actors {
		if a.HasDirectText() {
			t.Fatalf("actor[%d] 不应再有直接文本", i)
		}
		if len(a.ChildrenByTag("name")) != 1 || len(a.ChildrenByTag("type")) != 1 {
			t.Fatalf("actor[%d] 应恰好一个 name 与 type：%v", i, tags(a))
		}
		if a.ChildText("type") == "" {
			t.Fatalf("actor[%d] type 不应为空", i)
		}
	}
	if actors[0].ChildText("name") != "Emma" {
		t.Fatalf("迁移出的 name 应经过别名映射，实际 %q", actors[0].ChildText("name"))
	}
	if actors[1].ChildText("name") != "A" || actors[1].ChildText("type") != DefaultActorType {
		t.Fatalf("actor[1] 不符合预期：name=%q type=%q", actors[1].ChildText("name"), actors[1].ChildText("type"))
	}
	if actors[2].Children[0].Tag != "name" || actors[2].ChildText("thumb") != "x.jpg" {
		t.Fatalf("actor[2] 应补一个空 name 且保留 thumb：%v", tags(actors[2]))
	}
}

func TestRewrite_TagGenreAlias(t *testing.T) {
	doc := mustParse(t, `<movie><tag> エマ </tag><genre>エマ</genre><tag>ドラマ</tag></movie>`)
	rep := mustRewrite(t, doc, allPasses(map[string]string{"エマ": "Emma"}, nil))

	if rep.Counts.Tag != 1 || rep.Counts.Genre != 1 {
		t.Fatalf("计数不符合预期：%+v", rep.Counts)
	}
	if doc.Root.ChildText("tag") != "Emma" || doc.Root.ChildText("genre") != "Emma" {
		t.Fatalf("tag/genre 应被映射")
	}
}

func TestRewrite_PassesDisabled(t *testing.T) {
	doc := mustParse(t, `<movie><num>PRED-001</num><actor><name>エマ</name><type>Actor</type></actor></movie>`)
	rep := mustRewrite(t, doc, Options{
		Actors: mapping.NewActorMap(map[string]string{"エマ": "Emma"}),
		Series: mapping.NewSeriesMap(map[string]string{"PRED-001": "Premium"}),
	})
	if rep.Modified() {
		t.Fatalf("关闭 actor/series 后不应有修改：%+v", rep.Counts)
	}
}

func TestRewrite_EmptyMappingsOnlyReorderCanonicalDoc(t *testing.T) {
	doc := mustParse(t, `<movie>
  <custom>c</custom>
  <title>t</title>
  <actor><name>A</name><type>Actor</type></actor>
  <num>N-1</num>
</movie>`)
	before := doc.Clone()
	rep := mustRewrite(t, doc, allPasses(nil, nil))

	c := rep.Counts
	if c.Actor+c.Tag+c.Genre+c.Series+c.Set+c.Repair+c.Rating+c.Removed != 0 {
		t.Fatalf("空映射下不应有内容修改：%+v", c)
	}
	if !c.Reordered {
		t.Fatalf("期望发生重排")
	}
	if got := strings.Join(tags(doc.Root), ","); got != "num,title,actor,custom" {
		t.Fatalf("顺序不符合预期：%s", got)
	}
	Reorder(before.Root)
	if !nfo.Equal(before.Root, doc.Root) {
		t.Fatalf("除重排外不应有差异")
	}
}

func TestRewrite_Idempotent(t *testing.T) {
	inputs := []string{
		`<movie><actor>エマ</actor><tag>エマ</tag><set>Old</set><rating>9.95</rating><num>PRED-001</num></movie>`,
		`<movie><x/><num>PRED-001</num><tag>系列: a</tag><tag>系列: b</tag><genre>g</genre><set>t<name>n</name><name>m</name></set></movie>`,
		`<movie><actor><name>A</name></actor><actor>B<type>Actress</type></actor><rating>abc</rating></movie>`,
		`<movie/>`,
	}
	opts := allPasses(
		map[string]string{"エマ": "Emma", "Emma": "Emma Z", "A": "B"},
		map[string]string{"PRED-001": "Premium"},
	)
	for i, in := range inputs {
		doc := mustParse(t, in)
		mustRewrite(t, doc, opts)
		first := string(nfo.Encode(doc))

		rep := mustRewrite(t, doc, opts)
		if rep.Modified() {
			t.Fatalf("输入 %d 第二次改写不应有修改：%+v", i, rep.Counts)
		}
		if second := string(nfo.Encode(doc)); second != first {
			t.Fatalf("输入 %d 不幂等：\n%s\n---\n%s", i, first, second)
		}
	}
}

func TestRewrite_NilDocument(t *testing.T) {
	_, err := Rewrite(nil, Options{})
	var re *Error
	if !errors.As(err, &re) {
		t.Fatalf("期望 *Error，实际 %v", err)
	}
}

func TestReorder_StableWithUnknownTags(t *testing.T) {
	doc := mustParse(t, `<movie><b/><tag>1</tag><a/><plot>p</plot><tag>2</tag><num>n</num></movie>`)
	if !Reorder(doc.Root) {
		t.Fatalf("期望发生重排")
	}
	got := make([]string, 0)
	for _, c := range doc.Root.Children {
		got = append(got, c.Tag+c.TrimmedText())
	}
	if s := strings.Join(got, ","); s != "plotp,numn,tag1,tag2,b,a" {
		t.Fatalf("顺序不符合预期：%s", s)
	}
	if Reorder(doc.Root) {
		t.Fatalf("已排序时不应报告变化")
	}
}
