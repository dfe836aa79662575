package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

const (
	ErrCodeConfigMissing   = "config_missing"
	ErrCodeConfigMalformed = "config_malformed"
	ErrCodeConfigInvalid   = "config_invalid"
	ErrCodeParseFailed     = "parse_failed"
	ErrCodeRewriteFailed   = "rewrite_failed"
	ErrCodeWriteFailed     = "write_failed"
	ErrCodeRenameConflict  = "rename_conflict"
	ErrCodeIOFailed        = "io_failed"
	ErrCodeCancelled       = "cancelled"
)

const (
	SkipUnchanged = "unchanged"
	SkipFiltered  = "filtered"
)

// RunReport 是对外稳定输出（stdout JSON）的结构。
type RunReport struct {
	RunID  string `json:"run_id"`
	Root   string `json:"root"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Cancelled 为 true 时，Completed < Total 是预期的。
	Cancelled bool `json:"cancelled"`
	Total     int  `json:"total"`
	Completed int  `json:"completed"`

	AuditLog string `json:"audit_log"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Renamed   int `json:"renamed"`
	Written   int `json:"written"`
}

// ItemResult 是单个叶子目录的处理结果。路径均相对扫描根目录。
type ItemResult struct {
	Leaf string `json:"leaf"`
	Doc  string `json:"doc"`
	Num  string `json:"num"`

	Status     string `json:"status"`
	SkipReason string `json:"skip_reason,omitempty"`
	ErrorCode  string `json:"error_code"`
	ErrorMsg   string `json:"error_msg"`

	Changes ChangeCounts `json:"changes"`
	Written bool         `json:"written"`

	// RenamedTo 非空表示目录已（或在 dry-run 下将会）被重命名为该相对路径。
	RenamedTo string `json:"renamed_to,omitempty"`
}

// Modifying 表示该条目是否属于"有修改"的结果（UI 流只展示这些）。
func (it ItemResult) Modifying() bool {
	return it.Changes.Modified() || it.RenamedTo != ""
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) items 稳定排序：按 leaf 字典序；leaf=="" 的合成条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Leaf
		b := r.Items[j].Leaf
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
		if it.RenamedTo != "" {
			s.Renamed++
		}
		if it.Written {
			s.Written++
		}
	}
	r.Summary = s
}

// MarshalJSON 集中约束输出的稳定性：nil items 输出为 []。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	a := Alias(r)
	if a.Items == nil {
		a.Items = []ItemResult{}
	}
	return json.Marshal(a)
}
