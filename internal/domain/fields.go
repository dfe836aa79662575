package domain

import (
	"math"
	"strconv"
	"strings"
)

// Fields 是从文档投影出的扁平字段视图，供模板、排序与过滤使用。
// 所有字符串字段都已 TrimSpace；缺失字段为空串。
type Fields struct {
	Title      string
	Num        string
	Director   string
	Studio     string
	Publisher  string
	Year       string
	Runtime    string
	Rating     string // 一位小数；非数字时为空
	Mosaic     string
	Definition string
	FourK      string // "4K" 或空

	Actors []string // 已经过演员别名映射
	Tags   []string
	Series string

	Filename string // 文档文件名（不含扩展名）
	Release  string // premiered / releasedate / release 中第一个非空值
	Plot     string // plot/outline 的纯文本形式
}

// Actor 把演员列表用 "," 连接。
func (f Fields) Actor() string { return strings.Join(f.Actors, ",") }

// SmartActor 返回"智能"演员串：最多列出 3 人，超出时追加"等演员"。
func (f Fields) SmartActor() string {
	switch n := len(f.Actors); {
	case n == 0:
		return ""
	case n <= 3:
		return strings.Join(f.Actors, ",")
	default:
		return strings.Join(f.Actors[:3], ",") + "等演员"
	}
}

// Value 按名称取单值字段（模板与过滤共享同一套名称）。
// number 是 num 的别名；4k 对应 FourK。
func (f Fields) Value(name string) (string, bool) {
	switch name {
	case "title":
		return f.Title, true
	case "num", "number":
		return f.Num, true
	case "filename":
		return f.Filename, true
	case "actor", "actors":
		return f.Actor(), true
	case "smart_actor":
		return f.SmartActor(), true
	case "director":
		return f.Director, true
	case "series":
		return f.Series, true
	case "studio":
		return f.Studio, true
	case "publisher":
		return f.Publisher, true
	case "year":
		return f.Year, true
	case "runtime":
		return f.Runtime, true
	case "rating":
		return f.Rating, true
	case "mosaic":
		return f.Mosaic, true
	case "definition":
		return f.Definition, true
	case "4k":
		return f.FourK, true
	case "tags":
		return strings.Join(f.Tags, ","), true
	case "release":
		return f.Release, true
	case "plot":
		return f.Plot, true
	default:
		return "", false
	}
}

// ParseRating 解析评分文本；NaN/Inf 与非数字都视为失败。
func ParseRating(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
