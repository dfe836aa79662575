// Package workid 在文档缺少 <num> 时，从文档文件名与叶子目录名推断识别号。
package workid

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/John-Robertt/avnfo/internal/domain"
)

// 允许的识别号变体：字母段 + 分隔符变体 + 数字段。
// 分隔符至少出现一次，避免把 "SAMPLE123" 这种噪音误判成识别号。
var candidateRE = regexp.MustCompile(`(?i)([a-z]{2,6})[\s._-]+([0-9]{2,5})`)

const (
	KindNoMatch   = "no_match"
	KindAmbiguous = "ambiguous"
)

type UnmatchedError struct {
	// Kind: KindNoMatch 或 KindAmbiguous
	Kind string
	// Candidates 仅在 ambiguous 时返回（已排序）。
	Candidates []domain.WorkID
}

func (e *UnmatchedError) Error() string {
	switch e.Kind {
	case KindNoMatch:
		return "无法从文件名或目录名推断识别号"
	case KindAmbiguous:
		parts := make([]string, 0, len(e.Candidates))
		for _, c := range e.Candidates {
			parts = append(parts, string(c))
		}
		return "推断出多个不同识别号（ambiguous）：" + strings.Join(parts, ", ")
	default:
		return "unmatched"
	}
}

// FromLeaf 从文档文件名（去扩展名）与其所在目录名中提取唯一识别号。
// 两处给出不同结果时视为 ambiguous，不做猜测。
func FromLeaf(docPath string) (domain.WorkID, error) {
	m := map[domain.WorkID]struct{}{}

	base := filepath.Base(docPath)
	addCandidates(m, strings.TrimSuffix(base, filepath.Ext(base)))
	addCandidates(m, filepath.Base(filepath.Dir(docPath)))

	return pick(m)
}

// FromName 只看单个名称。
func FromName(s string) (domain.WorkID, error) {
	m := map[domain.WorkID]struct{}{}
	addCandidates(m, s)
	return pick(m)
}

// Normalize 把 "cawd_895" 之类的写法规范成 "CAWD-895"；无法规范时原样返回 false。
func Normalize(s string) (domain.WorkID, bool) {
	if id, ok := domain.ParseWorkID(s); ok {
		return id, true
	}
	id, err := FromName(s)
	if err != nil {
		return "", false
	}
	return id, true
}

func pick(m map[domain.WorkID]struct{}) (domain.WorkID, error) {
	if len(m) == 0 {
		return "", &UnmatchedError{Kind: KindNoMatch}
	}
	if len(m) > 1 {
		cands := make([]domain.WorkID, 0, len(m))
		for c := range m {
			cands = append(cands, c)
		}
		sort.Slice(cands, func(i, j int) bool { return cands[i] < cands[j] })
		return "", &UnmatchedError{Kind: KindAmbiguous, Candidates: cands}
	}
	for c := range m {
		return c, nil
	}
	return "", &UnmatchedError{Kind: KindNoMatch}
}

func addCandidates(dst map[domain.WorkID]struct{}, s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	for _, m := range candidateRE.FindAllStringSubmatch(s, -1) {
		if len(m) < 3 {
			continue
		}
		if id, ok := domain.ParseWorkID(strings.ToUpper(m[1]) + "-" + m[2]); ok {
			dst[id] = struct{}{}
		}
	}
}
