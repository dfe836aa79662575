// Package run 驱动一次批处理：扫描叶子目录，在有界 worker 池中逐个执行
// 解析 -> 改写 -> 按需写回 -> 按需重命名，并产出 RunReport 与审计日志。
package run

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/avnfo/internal/app/planner"
	"github.com/John-Robertt/avnfo/internal/audit"
	"github.com/John-Robertt/avnfo/internal/config"
	"github.com/John-Robertt/avnfo/internal/domain"
	"github.com/John-Robertt/avnfo/internal/extract"
	"github.com/John-Robertt/avnfo/internal/mapping"
	"github.com/John-Robertt/avnfo/internal/naming"
	"github.com/John-Robertt/avnfo/internal/nfo"
	"github.com/John-Robertt/avnfo/internal/query"
	"github.com/John-Robertt/avnfo/internal/rewrite"
	"github.com/John-Robertt/avnfo/internal/scan"
)

// Deps 是一次运行的外部依赖。映射表在进入 Execute 前已加载完毕，运行期间只读。
type Deps struct {
	Tables mapping.Tables

	// Sink 为 nil 时丢弃全部日志。
	Sink *audit.Sink

	// Filters 非空时，只处理满足全部谓词的叶子；其余记为 skipped/filtered。
	Filters []query.Predicate

	// RunID 为空时自动生成。
	RunID string
}

// Execute 执行一次 run，并返回对外稳定的 RunReport。
// 单个叶子的失败只会体现为该条目 failed，不会中断整个流水线。
func Execute(ctx context.Context, eff config.EffectiveConfig, deps Deps) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, deps, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
//
// 取消：ctx 结束后置位一个共享标志；派发新任务前与 worker 开始任务前都会检查该标志，
// 已经开始的任务总会完整执行。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, deps Deps, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	sink := deps.Sink
	if sink == nil {
		sink = audit.Discard()
	}
	runID := deps.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	// 共享取消标志：一旦置位不再复位。
	var cancelled atomic.Bool
	stopped := func() bool {
		if ctx.Err() != nil {
			cancelled.Store(true)
		}
		return cancelled.Load()
	}

	if obs != nil {
		obs.OnStart(eff, runID)
	}

	rr := domain.RunReport{
		RunID:     runID,
		Root:      eff.Root,
		DryRun:    eff.DryRun,
		StartedAt: started,
		AuditLog:  sink.Path(),
		Items:     make([]domain.ItemResult, 0, 128),
	}

	sink.Info("run.start",
		"run_id", runID,
		"root", eff.Root,
		"dry_run", eff.DryRun,
		"actor_map", sourceOrNone(deps.Tables.ActorSource),
		"actor_entries", deps.Tables.Actor.Len(),
		"series_map", sourceOrNone(deps.Tables.SeriesSource),
		"series_entries", deps.Tables.Series.Len(),
		"config", eff.String(),
	)
	for _, w := range deps.Tables.Warnings {
		sink.Warn("mapping.missing", "error", w.Error())
	}

	if obs != nil {
		obs.OnProgress(0, 0, StageScanning)
	}
	scanStarted := time.Now()
	scanOpts := scan.Options{DocExt: eff.DocExt, ExcludeDirs: eff.ExcludeDirs}
	if p := sink.Path(); p != "" {
		scanOpts.LogDir = filepath.Dir(p)
	}
	leaves, err := scan.ScanLeaves(eff.Root, scanOpts)
	if err != nil {
		sink.Error("scan.failed", "root", eff.Root, "error", err.Error())
		sink.Failure("scan.failed", "root", eff.Root, "error_code", domain.ErrCodeIOFailed, "error", err.Error())
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("扫描失败：%v", err)))
		return finish(rr, sink)
	}
	scanDur := time.Since(scanStarted)
	rr.Total = len(leaves)
	sink.Info("scan.done", "leaves", len(leaves), "dur", scanDur)

	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{"leaves": len(leaves)}, scanDur)
	}

	// 执行阶段：按叶子并发（worker pool），叶子内串行。
	workers := eff.Workers
	if workers < 1 {
		workers = 1
	}
	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"workers":     workers,
			"total_items": len(leaves),
		}, 0)
		obs.OnProgress(0, len(leaves), StageProcessing)
	}

	type execResult struct {
		res domain.ItemResult
		dur time.Duration
	}

	jobs := make(chan domain.Leaf)
	results := make(chan execResult, len(leaves))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for leaf := range jobs {
				if stopped() {
					continue
				}
				oneStarted := time.Now()
				r := execLeaf(eff, deps.Tables, deps.Filters, sink, leaf)
				results <- execResult{res: r, dur: time.Since(oneStarted)}
			}
		}()
	}

	go func() {
		for _, l := range leaves {
			if stopped() {
				break
			}
			jobs <- l
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	done := 0
	for it := range results {
		done++
		rr.Items = append(rr.Items, it.res)
		if obs != nil {
			obs.OnProgress(done, len(leaves), StageProcessing)
			obs.OnItemDone(done, len(leaves), it.res, it.dur)
		}
	}

	rr.Completed = done
	rr.Cancelled = cancelled.Load()
	if rr.Cancelled {
		sink.Warn("run.cancelled", "completed", done, "total", len(leaves))
	}
	return finish(rr, sink)
}

func finish(rr domain.RunReport, sink *audit.Sink) domain.RunReport {
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	sink.Info("run.finish",
		"run_id", rr.RunID,
		"total", rr.Total,
		"completed", rr.Completed,
		"cancelled", rr.Cancelled,
		"processed", rr.Summary.Processed,
		"skipped", rr.Summary.Skipped,
		"failed", rr.Summary.Failed,
		"written", rr.Summary.Written,
		"renamed", rr.Summary.Renamed,
	)
	return rr
}

func sourceOrNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}

// execLeaf 允许测试替换单个叶子的处理逻辑。
var execLeaf = execOne

// execOne 处理单个叶子。顺序固定：读取 -> 解析 -> 过滤 -> 改写 -> 写回 -> 重命名。
func execOne(eff config.EffectiveConfig, tables mapping.Tables, filters []query.Predicate, sink *audit.Sink, leaf domain.Leaf) domain.ItemResult {
	item := domain.ItemResult{
		Leaf:   scan.Rel(leaf),
		Doc:    relPath(eff.Root, leaf.Doc),
		Status: domain.StatusProcessed, // 失败/跳过时覆盖
	}
	ctx := []any{"leaf", item.Leaf, "doc", item.Doc}
	with := func(args ...any) []any { return append(append([]any(nil), ctx...), args...) }

	fail := func(code string, err error) domain.ItemResult {
		item.Status = domain.StatusFailed
		item.ErrorCode = code
		item.ErrorMsg = err.Error()
		sink.Error("leaf.failed", with("error_code", code, "error", err.Error(), "kind", fmt.Sprintf("%T", err))...)
		outcome(sink, item)
		return item
	}

	if len(leaf.ExtraDocs) > 0 {
		extra := make([]string, 0, len(leaf.ExtraDocs))
		for _, d := range leaf.ExtraDocs {
			extra = append(extra, filepath.Base(d))
		}
		sink.Warn("leaf.extra_docs", with("ignored", strings.Join(extra, ","))...)
	}

	b, err := os.ReadFile(leaf.Doc)
	if err != nil {
		return fail(domain.ErrCodeIOFailed, err)
	}
	doc, err := nfo.Parse(b)
	if err != nil {
		return fail(domain.ErrCodeParseFailed, err)
	}

	exOpts := extract.Options{Actors: tables.Actor, InferNum: eff.InferNum}
	item.Num = extract.Num(doc.Root, leaf.Doc, eff.InferNum)

	if len(filters) > 0 && !query.MatchAll(extract.Fields(doc, leaf.Doc, exOpts), filters) {
		item.Status = domain.StatusSkipped
		item.SkipReason = domain.SkipFiltered
		sink.Info("leaf.skipped", with("reason", domain.SkipFiltered)...)
		return item
	}

	rep, err := rewrite.Rewrite(doc, rewrite.Options{
		Actors:   tables.Actor,
		Series:   tables.Series,
		DoActor:  eff.DoActor,
		DoSeries: eff.DoSeries,
		Num:      item.Num,
	})
	if err != nil {
		return fail(domain.ErrCodeRewriteFailed, err)
	}
	item.Changes = rep.Counts
	for _, c := range rep.Changes {
		sink.Success("field.changed", with("field", c.Field, "before", c.Before, "after", c.After)...)
	}
	if rep.Counts.Reordered {
		sink.Success("children.reordered", ctx...)
	}

	if rep.Modified() {
		if eff.DryRun {
			sink.Info("doc.write_skipped", with("reason", "dry_run")...)
		} else {
			if err := nfo.WriteFile(leaf.Doc, doc); err != nil {
				return fail(domain.ErrCodeWriteFailed, err)
			}
			item.Written = true
			sink.Success("doc.written", ctx...)
		}
	}

	if eff.DoRename {
		expected := naming.Render(eff.Template, extract.Fields(doc, leaf.Doc, exOpts))
		plan, err := planner.PlanRename(leaf, expected)
		if err != nil {
			return fail(renameErrCode(err), err)
		}
		if !plan.Noop {
			target := planner.RelTarget(eff.Root, plan)
			if eff.DryRun {
				item.RenamedTo = target
				sink.Info("dir.rename_planned", with("to", target)...)
			} else {
				if err := naming.Apply(plan); err != nil {
					return fail(renameErrCode(err), err)
				}
				item.RenamedTo = target
				sink.Success("dir.renamed", with("to", target)...)
			}
		} else if plan.Reason != "" {
			sink.Info("dir.rename_skipped", with("reason", plan.Reason, "name", expected)...)
		} else {
			sink.Info("dir.rename_noop", with("name", expected)...)
		}
	}

	if !item.Modifying() {
		item.Status = domain.StatusSkipped
		item.SkipReason = domain.SkipUnchanged
		sink.Info("leaf.skipped", with("reason", domain.SkipUnchanged)...)
		return item
	}
	outcome(sink, item)
	return item
}

// outcome 把有修改的结果写入两条流；没有修改的失败在 UI 流补一行 leaf.failed。
// 没有修改的跳过不进 UI 流。
func outcome(sink *audit.Sink, item domain.ItemResult) {
	if !item.Modifying() {
		if item.Status == domain.StatusFailed {
			sink.Failure("leaf.failed",
				"leaf", item.Leaf,
				"doc", item.Doc,
				"error_code", item.ErrorCode,
				"error", item.ErrorMsg,
			)
		}
		return
	}
	level := audit.LevelSuccess
	args := []any{
		"leaf", item.Leaf,
		"num", item.Num,
		"actor", item.Changes.Actor,
		"tag", item.Changes.Tag,
		"genre", item.Changes.Genre,
		"series", item.Changes.Series,
		"set", item.Changes.Set,
		"repair", item.Changes.Repair,
		"rating", item.Changes.Rating,
		"removed", item.Changes.Removed,
		"reordered", item.Changes.Reordered,
		"written", item.Written,
	}
	if item.RenamedTo != "" {
		args = append(args, "renamed_to", item.RenamedTo)
	}
	if item.Status == domain.StatusFailed {
		level = slog.LevelError
		args = append(args, "error_code", item.ErrorCode, "error", item.ErrorMsg)
	}
	sink.Outcome(level, "leaf.modified", args...)
}

func renameErrCode(err error) string {
	if naming.IsRenameConflict(err) {
		return domain.ErrCodeRenameConflict
	}
	return domain.ErrCodeIOFailed
}

func relPath(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(rel)
}
