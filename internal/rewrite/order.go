package rewrite

import "github.com/John-Robertt/avnfo/internal/nfo"

// Schedule 是根元素直接子元素的规范顺序。未列出的 tag 按原相对顺序排在其后。
var Schedule = []string{
	"plot", "outline", "originalplot", "tagline",
	"premiered", "releasedate", "release",
	"num", "title", "originaltitle", "sorttitle",
	"mpaa", "customrating", "countrycode",
	"actor", "director",
	"rating", "criticrating", "votes",
	"year", "runtime",
	"set", "series",
	"studio", "maker", "publisher", "label",
	"tag", "genre",
	"poster", "cover", "trailer", "website",
	"javdbid",
}

var scheduleRank = func() map[string]int {
	m := make(map[string]int, len(Schedule))
	for i, t := range Schedule {
		m[t] = i
	}
	return m
}()

// Reorder 稳定地按 Schedule 重排 root 的直接子元素；返回顺序是否发生变化。
func Reorder(root *nfo.Node) bool {
	if root == nil || len(root.Children) < 2 {
		return false
	}

	buckets := make([][]*nfo.Node, len(Schedule))
	var rest []*nfo.Node
	for _, c := range root.Children {
		if i, ok := scheduleRank[c.Tag]; ok {
			buckets[i] = append(buckets[i], c)
		} else {
			rest = append(rest, c)
		}
	}

	out := make([]*nfo.Node, 0, len(root.Children))
	for _, b := range buckets {
		out = append(out, b...)
	}
	out = append(out, rest...)

	changed := false
	for i := range out {
		if out[i] != root.Children[i] {
			changed = true
			break
		}
	}
	root.Children = out
	return changed
}
