// Package app 放置只读命令（dupes、list）共享的编排：扫描 + 解析 + 抽取，以及按键分组。
package app

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/John-Robertt/avnfo/internal/domain"
	"github.com/John-Robertt/avnfo/internal/extract"
	"github.com/John-Robertt/avnfo/internal/nfo"
	"github.com/John-Robertt/avnfo/internal/query"
	"github.com/John-Robertt/avnfo/internal/scan"
)

// CollectOptions 控制一次只读收集。
type CollectOptions struct {
	Scan    scan.Options
	Extract extract.Options
	Workers int
}

// Records 是一次收集的结果。
type Records struct {
	Rows []query.Row

	// Failures 是读取/解析失败的叶子（Status 固定为 failed）。
	Failures []domain.ItemResult

	Total     int
	Completed int
	Cancelled bool
}

// Collect 扫描 root，并在有界 worker 池中解析每个叶子的文档、抽取字段记录。
// 不写任何文件。Rows 与 Failures 均按叶子路径排序。
func Collect(ctx context.Context, root string, opts CollectOptions) (Records, error) {
	leaves, err := scan.ScanLeaves(root, opts.Scan)
	if err != nil {
		return Records{}, err
	}
	recs := Records{Total: len(leaves)}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	type result struct {
		row  query.Row
		fail *domain.ItemResult
	}

	jobs := make(chan domain.Leaf)
	results := make(chan result, len(leaves))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for leaf := range jobs {
				if ctx.Err() != nil {
					continue
				}
				row, fail := collectOne(root, leaf, opts.Extract)
				results <- result{row: row, fail: fail}
			}
		}()
	}

	go func() {
		for _, l := range leaves {
			if ctx.Err() != nil {
				break
			}
			jobs <- l
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	for r := range results {
		recs.Completed++
		if r.fail != nil {
			recs.Failures = append(recs.Failures, *r.fail)
			continue
		}
		recs.Rows = append(recs.Rows, r.row)
	}
	recs.Cancelled = recs.Completed < recs.Total && ctx.Err() != nil

	sort.SliceStable(recs.Rows, func(i, j int) bool { return recs.Rows[i].Leaf.Dir < recs.Rows[j].Leaf.Dir })
	sort.SliceStable(recs.Failures, func(i, j int) bool { return recs.Failures[i].Leaf < recs.Failures[j].Leaf })
	return recs, nil
}

func collectOne(root string, leaf domain.Leaf, opts extract.Options) (query.Row, *domain.ItemResult) {
	fail := func(code string, err error) *domain.ItemResult {
		return &domain.ItemResult{
			Leaf:      scan.Rel(leaf),
			Doc:       RelDoc(root, leaf.Doc),
			Status:    domain.StatusFailed,
			ErrorCode: code,
			ErrorMsg:  err.Error(),
		}
	}

	b, err := os.ReadFile(leaf.Doc)
	if err != nil {
		return query.Row{}, fail(domain.ErrCodeIOFailed, err)
	}
	doc, err := nfo.Parse(b)
	if err != nil {
		return query.Row{}, fail(domain.ErrCodeParseFailed, err)
	}
	return query.Row{Leaf: leaf, Fields: extract.Fields(doc, leaf.Doc, opts)}, nil
}

// RelDoc 返回文档相对 root 的 slash 路径；无法计算时原样返回。
func RelDoc(root, doc string) string {
	rel, err := filepath.Rel(root, doc)
	if err != nil {
		return doc
	}
	return filepath.ToSlash(rel)
}
