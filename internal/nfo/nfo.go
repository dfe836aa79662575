package nfo

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/John-Robertt/avnfo/internal/infra/fsx"
)

// Header 是输出文档的第一行（固定 UTF-8 声明）。
const Header = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

const indentUnit = "  "

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseError 表示文档不是格式良好的 XML。
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("解析文档失败（第 %d 行）：%v", e.Line, e.Err)
	}
	return fmt.Sprintf("解析文档失败：%v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// WriteError 表示文档写回失败（原文件保持不变）。
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("写入文档失败 %q：%v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Parse 把文档解析为有序元素树。
//
// 规则：
// - 文本原样保留（含空白），只在取字段时 TrimSpace
// - 允许 HTML 命名实体（&nbsp; 等）；声明了非 UTF-8 编码时按声明解码
// - 注释与处理指令不进入树；任何元素都不会被丢弃
func Parse(b []byte) (*Document, error) {
	b = bytes.TrimPrefix(b, utf8BOM)

	d := xml.NewDecoder(bytes.NewReader(b))
	d.Strict = true
	d.Entity = xml.HTMLEntity
	d.CharsetReader = charset.NewReaderLabel

	var (
		root  *Node
		stack []*Node
	)
	fail := func(err error) (*Document, error) {
		line, _ := d.InputPos()
		return nil, &ParseError{Line: line, Err: err}
	}

	for {
		tok, err := d.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Tag: qualify(t.Name)}
			if len(t.Attr) > 0 {
				n.Attrs = append([]xml.Attr(nil), t.Attr...)
			}
			if len(stack) == 0 {
				if root != nil {
					return fail(errors.New("存在多个根元素"))
				}
				root = n
			} else {
				top := stack[len(stack)-1]
				top.Children = append(top.Children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) == 0 {
				return fail(fmt.Errorf("多余的结束标签 </%s>", qualify(t.Name)))
			}
			top := stack[len(stack)-1]
			if name := qualify(t.Name); name != top.Tag {
				return fail(fmt.Errorf("结束标签 </%s> 与 <%s> 不匹配", name, top.Tag))
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					return fail(errors.New("根元素之外存在文本"))
				}
				continue
			}
			top := stack[len(stack)-1]
			top.Text += string(t)
		}
	}

	if len(stack) > 0 {
		return fail(fmt.Errorf("元素 <%s> 未闭合", stack[len(stack)-1].Tag))
	}
	if root == nil {
		return fail(errors.New("文档为空"))
	}
	return &Document{Root: root}, nil
}

// Encode 把文档序列化为规范排版：
// - 第一行是 UTF-8 声明
// - 两个空格缩进
// - 输出中不存在空行
// - 子元素顺序即树中的顺序
func Encode(doc *Document) []byte {
	var buf bytes.Buffer
	buf.WriteString(Header)
	if doc != nil && doc.Root != nil {
		writeNode(&buf, doc.Root, 0)
	}
	return dropBlankLines(buf.Bytes())
}

// WriteFile 把文档完整序列化后一次性原子替换到 path。
// 任何失败都返回 *WriteError，且原文件保持不变。
func WriteFile(path string, doc *Document) error {
	b := Encode(doc)
	if err := fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), b); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

func writeNode(buf *bytes.Buffer, n *Node, depth int) {
	indent := strings.Repeat(indentUnit, depth)
	buf.WriteString(indent)
	buf.WriteByte('<')
	buf.WriteString(n.Tag)
	for _, a := range n.Attrs {
		buf.WriteByte(' ')
		buf.WriteString(qualify(a.Name))
		buf.WriteString(`="`)
		buf.WriteString(attrEscaper.Replace(a.Value))
		buf.WriteByte('"')
	}

	if len(n.Children) == 0 {
		if n.Text == "" {
			buf.WriteString("/>\n")
			return
		}
		buf.WriteByte('>')
		buf.WriteString(textEscaper.Replace(n.Text))
		buf.WriteString("</")
		buf.WriteString(n.Tag)
		buf.WriteString(">\n")
		return
	}

	buf.WriteByte('>')
	// 混合内容：只保留非空白直接文本，放在开始标签之后。
	if t := strings.TrimSpace(n.Text); t != "" {
		buf.WriteString(textEscaper.Replace(t))
	}
	buf.WriteByte('\n')
	for _, c := range n.Children {
		writeNode(buf, c, depth+1)
	}
	buf.WriteString(indent)
	buf.WriteString("</")
	buf.WriteString(n.Tag)
	buf.WriteString(">\n")
}

// dropBlankLines 删除所有空白行，包括多行文本（例如 plot）内部的空行。
// 这会改变那段文本的内容；只有被改写过的文档才会走到这里，未改写的文档不重新编码。
func dropBlankLines(b []byte) []byte {
	lines := bytes.Split(b, []byte("\n"))
	out := make([]byte, 0, len(b))
	for _, l := range lines {
		if len(bytes.TrimSpace(l)) == 0 {
			continue
		}
		out = append(out, l...)
		out = append(out, '\n')
	}
	return out
}

func qualify(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\r", "&#xD;",
)

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"\r", "&#xD;",
	"\n", "&#xA;",
	"\t", "&#x9;",
)
