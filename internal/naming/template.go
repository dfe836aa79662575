// Package naming 把字段视图按模板渲染为合法的目录名，并执行叶子目录重命名。
//
// 模板是自由文本：其中以整词出现的字段标识符（title、num、smart_actor、4k 等）
// 会被替换为字段值，其余字符原样保留。
package naming

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/John-Robertt/avnfo/internal/domain"
)

// DefaultTemplate 是缺省命名模板。
const DefaultTemplate = "filename smart_actor"

// MaxNameBytes 是渲染结果的字节上限（多数文件系统单个名称上限为 255 字节）。
const MaxNameBytes = 200

// Identifiers 是模板可识别的字段名，按长度降序排列（长名优先，避免前缀截获）。
var Identifiers = []string{
	"smart_actor", "definition", "publisher", "filename", "director",
	"runtime", "number", "series", "studio", "mosaic", "rating",
	"actor", "title", "year", "num", "4k",
}

// 单趟替换：字段值中即使出现标识符也不会被二次替换。
var tokenRE = regexp.MustCompile(`\b(?:` + strings.Join(Identifiers, "|") + `)\b`)

var illegalChars = strings.NewReplacer(
	`\`, "_", "/", "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

// Substitute 只做标识符替换，不做清洗。
func Substitute(tmpl string, f domain.Fields) string {
	return tokenRE.ReplaceAllStringFunc(tmpl, func(tok string) string {
		v, _ := f.Value(tok)
		return v
	})
}

// Render 渲染并清洗模板；结果为空时回退到 filename。
func Render(tmpl string, f domain.Fields) string {
	if name := Sanitize(Substitute(tmpl, f)); name != "" {
		return name
	}
	return Sanitize(f.Filename)
}

// Sanitize 把任意字符串清洗成单个目录名：
// 非法字符替换为 '_'，连续空白折叠为一个空格，去首尾空白，NFC 规范化，并截断到 MaxNameBytes。
// "." 与 ".." 视为空。
func Sanitize(s string) string {
	s = illegalChars.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	s = norm.NFC.String(s)
	s = truncate(s, MaxNameBytes)
	s = strings.TrimSpace(s)
	if s == "." || s == ".." {
		return ""
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
