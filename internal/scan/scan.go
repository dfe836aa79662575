// Package scan 遍历库根目录，找出直接包含元数据文档的叶子目录。
package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/avnfo/internal/domain"
)

// DefaultDocExt 是缺省的文档后缀。
const DefaultDocExt = ".nfo"

// LogDirName 是审计日志目录名（<root>/log），扫描时永久排除。
const LogDirName = "log"

// Options 控制扫描行为。
type Options struct {
	// DocExt 是文档后缀（大小写不敏感），为空时使用 DefaultDocExt。
	DocExt string

	// ExcludeDirs 来自配置文件，均视为相对 root 的路径（若是绝对路径，则按绝对路径处理）。
	ExcludeDirs []string

	// LogDir 是额外需要排除的日志目录（绝对路径）；为空时只排除 <root>/log。
	LogDir string
}

// ScanLeaves 扫描 root 下的叶子目录，并应用目录排除规则。
//
// 规则：
// - 永久排除：<root>/log 以及隐藏目录（名称以 '.' 开头）
// - 一个目录直接包含至少一个文档文件即为叶子；同目录多个文档时取名称最小者，其余记入 ExtraDocs
// - 只看文件名后缀，不读文件内容
// - 输出按相对路径稳定排序，每个目录只出现一次
func ScanLeaves(root string, opts Options) ([]domain.Leaf, error) {
	root = filepath.Clean(root)
	ext := strings.ToLower(strings.TrimSpace(opts.DocExt))
	if ext == "" {
		ext = DefaultDocExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	excluded := buildExcluded(root, opts)

	docs := make(map[string][]string, 128)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if path != root && (isExcluded(path, excluded) || (d.IsDir() && strings.HasPrefix(d.Name(), "."))) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if strings.ToLower(filepath.Ext(d.Name())) != ext {
			return nil
		}

		dir := filepath.Dir(path)
		docs[dir] = append(docs[dir], path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	leaves := make([]domain.Leaf, 0, len(docs))
	for dir, paths := range docs {
		sort.Strings(paths)
		leaf := domain.Leaf{
			Dir:      dir,
			Doc:      paths[0],
			RelParts: relParts(root, dir),
		}
		if len(paths) > 1 {
			leaf.ExtraDocs = append([]string(nil), paths[1:]...)
		}
		leaves = append(leaves, leaf)
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Dir < leaves[j].Dir })
	markSubLeaves(root, leaves, docs)
	return leaves, nil
}

// markSubLeaves 给每个"祖先目录也是叶子"的情况标记祖先。
// 不能只比较排序后的相邻项："a b" 排在 "a/b" 之前。
func markSubLeaves(root string, leaves []domain.Leaf, docs map[string][]string) {
	ancestors := make(map[string]bool, len(leaves))
	for _, l := range leaves {
		for dir := l.Dir; dir != root; {
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			if _, ok := docs[parent]; ok {
				ancestors[parent] = true
			}
			dir = parent
		}
	}
	for i := range leaves {
		leaves[i].HasSubLeaves = ancestors[leaves[i].Dir]
	}
}

// Rel 返回叶子相对 root 的 '/' 分隔路径（根目录本身为 "."）。
func Rel(l domain.Leaf) string {
	if len(l.RelParts) == 0 {
		return "."
	}
	return strings.Join(l.RelParts, "/")
}

func relParts(root, dir string) []string {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return nil
	}
	return strings.Split(filepath.ToSlash(rel), "/")
}

func buildExcluded(root string, opts Options) []string {
	excluded := make([]string, 0, 2+len(opts.ExcludeDirs))
	excluded = append(excluded, filepath.Join(root, LogDirName))
	if d := strings.TrimSpace(opts.LogDir); d != "" {
		excluded = append(excluded, resolveDir(root, d))
	}

	for _, x := range opts.ExcludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		excluded = append(excluded, resolveDir(root, x))
	}

	sort.Strings(excluded)
	return excluded
}

func resolveDir(root, x string) string {
	if filepath.IsAbs(x) {
		return filepath.Clean(x)
	}
	return filepath.Clean(filepath.Join(root, x))
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
