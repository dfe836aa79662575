// Package extract 把解析后的文档投影为 domain.Fields。
//
// 投影是纯函数：只读文档，不修改。模板、排序、过滤与重复检测都基于它。
package extract

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/avnfo/internal/domain"
	"github.com/John-Robertt/avnfo/internal/mapping"
	"github.com/John-Robertt/avnfo/internal/nfo"
	"github.com/John-Robertt/avnfo/internal/workid"
)

// 单值字段的别名表：按顺序取第一个非空文本。
var (
	titleTags      = []string{"title", "originaltitle", "sorttitle"}
	numTags        = []string{"num"}
	directorTags   = []string{"director"}
	studioTags     = []string{"studio", "maker"}
	publisherTags  = []string{"publisher", "label"}
	yearTags       = []string{"year"}
	runtimeTags    = []string{"runtime"}
	mosaicTags     = []string{"mosaic"}
	definitionTags = []string{"definition"}
	releaseTags    = []string{"premiered", "releasedate", "release"}
	plotTags       = []string{"plot", "outline"}
)

// Options 控制投影行为。
type Options struct {
	Actors mapping.ActorMap

	// InferNum：文档没有 <num> 时，从文档文件名/目录名推断识别号。
	InferNum bool
}

// Fields 计算文档的字段视图。docPath 用于 filename（以及可选的识别号推断）。
func Fields(doc *nfo.Document, docPath string, opts Options) domain.Fields {
	var root *nfo.Node
	if doc != nil {
		root = doc.Root
	}

	f := domain.Fields{
		Title:      First(root, titleTags...),
		Num:        Num(root, docPath, opts.InferNum),
		Director:   First(root, directorTags...),
		Studio:     First(root, studioTags...),
		Publisher:  First(root, publisherTags...),
		Runtime:    First(root, runtimeTags...),
		Rating:     Rating(root.ChildText("rating")),
		Mosaic:     First(root, mosaicTags...),
		Definition: First(root, definitionTags...),
		Series:     root.ChildText("series"),
		Release:    First(root, releaseTags...),
		Filename:   Filename(docPath),
	}
	f.FourK = fourK(f.Definition)
	f.Year = year(First(root, yearTags...), f.Release)
	f.Actors = actors(root, opts.Actors)
	f.Tags = texts(root, "tag")
	f.Plot = PlainText(First(root, plotTags...))
	return f
}

// First 返回 tags 中第一个出现非空文本的元素文本（按别名顺序，再按文档顺序）。
func First(root *nfo.Node, tags ...string) string {
	for _, tag := range tags {
		for _, c := range root.ChildrenByTag(tag) {
			if t := c.TrimmedText(); t != "" {
				return t
			}
		}
	}
	return ""
}

// Num 返回文档的识别号；infer 为 true 且文档没有 <num> 时尝试从路径推断。
func Num(root *nfo.Node, docPath string, infer bool) string {
	if n := First(root, numTags...); n != "" {
		return n
	}
	if !infer || docPath == "" {
		return ""
	}
	id, err := workid.FromLeaf(docPath)
	if err != nil {
		return ""
	}
	return string(id)
}

// Filename 返回文档文件名（不含扩展名）。
func Filename(docPath string) string {
	base := filepath.Base(docPath)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Rating 把评分重排为一位小数；非数字返回空串。
func Rating(s string) string {
	v, ok := domain.ParseRating(s)
	if !ok {
		return ""
	}
	out := strconv.FormatFloat(v, 'f', 1, 64)
	if out == "-0.0" {
		return "0.0"
	}
	return out
}

// PlainText 把可能含 HTML 片段的简介转为纯文本（连续空白折叠为一个空格）。
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	doc.Find("script,style").Remove()
	doc.Find("br,p,div,li").Each(func(_ int, sel *goquery.Selection) {
		sel.BeforeHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func fourK(definition string) string {
	d := strings.ToLower(definition)
	if strings.Contains(d, "4k") || strings.Contains(d, "2160") {
		return "4K"
	}
	return ""
}

func year(y, release string) string {
	if y != "" {
		return y
	}
	if len(release) >= 4 {
		if _, err := strconv.Atoi(release[:4]); err == nil {
			return release[:4]
		}
	}
	return ""
}

// actors 取 actor/name；尚未修复的 <actor>文本</actor> 也按名字处理。
func actors(root *nfo.Node, m mapping.ActorMap) []string {
	var out []string
	for _, a := range root.ChildrenByTag("actor") {
		name := a.ChildText("name")
		if name == "" && a.Child("name") == nil {
			name = a.TrimmedText()
		}
		if name == "" {
			continue
		}
		out = append(out, m.Lookup(name))
	}
	return out
}

func texts(root *nfo.Node, tag string) []string {
	var out []string
	for _, c := range root.ChildrenByTag(tag) {
		if t := c.TrimmedText(); t != "" {
			out = append(out, t)
		}
	}
	return out
}
