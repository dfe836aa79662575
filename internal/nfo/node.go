package nfo

import (
	"encoding/xml"
	"strings"
)

// Node 是文档树中的一个元素：可选文本 + 有序子节点。
//
// Text 保存该元素的直接文本（原样，含缩进空白）；只在取值时才做 TrimSpace。
type Node struct {
	Tag      string
	Attrs    []xml.Attr
	Text     string
	Children []*Node
}

// Document 是解析后的元数据文档（只有一个根元素）。
type Document struct {
	Root *Node
}

// NewNode 构造一个叶子元素。
func NewNode(tag, text string) *Node {
	return &Node{Tag: tag, Text: text}
}

// TrimmedText 返回去首尾空白后的直接文本。
func (n *Node) TrimmedText() string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.Text)
}

// HasDirectText 表示元素是否带有非空白的直接文本。
func (n *Node) HasDirectText() bool { return n.TrimmedText() != "" }

// Child 返回第一个 tag 匹配的子元素；不存在时返回 nil。
func (n *Node) Child(tag string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// ChildrenByTag 按原顺序返回所有 tag 匹配的子元素。
func (n *Node) ChildrenByTag(tag string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// ChildText 返回第一个 tag 匹配的子元素的 TrimmedText。
func (n *Node) ChildText(tag string) string { return n.Child(tag).TrimmedText() }

// AppendChild 在末尾追加子元素。
func (n *Node) AppendChild(c *Node) { n.Children = append(n.Children, c) }

// InsertChild 在位置 i 插入子元素（i 越界时按首/尾处理）。
func (n *Node) InsertChild(i int, c *Node) {
	if i < 0 {
		i = 0
	}
	if i >= len(n.Children) {
		n.Children = append(n.Children, c)
		return
	}
	n.Children = append(n.Children, nil)
	copy(n.Children[i+1:], n.Children[i:])
	n.Children[i] = c
}

// RemoveChild 按指针移除子元素；返回是否找到。
func (n *Node) RemoveChild(c *Node) bool {
	for i, x := range n.Children {
		if x == c {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return true
		}
	}
	return false
}

// Clone 深拷贝。
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Tag:  n.Tag,
		Text: n.Text,
	}
	if len(n.Attrs) > 0 {
		out.Attrs = append([]xml.Attr(nil), n.Attrs...)
	}
	if len(n.Children) > 0 {
		out.Children = make([]*Node, 0, len(n.Children))
		for _, c := range n.Children {
			out.Children = append(out.Children, c.Clone())
		}
	}
	return out
}

// Clone 深拷贝整个文档。
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	return &Document{Root: d.Root.Clone()}
}

// Equal 判断两棵树结构等价：tag、属性、子元素顺序一致，文本 TrimSpace 后一致。
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Tag != b.Tag || a.TrimmedText() != b.TrimmedText() {
		return false
	}
	if len(a.Attrs) != len(b.Attrs) || len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Attrs {
		if a.Attrs[i] != b.Attrs[i] {
			return false
		}
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}
