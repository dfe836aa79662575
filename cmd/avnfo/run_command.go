package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/avnfo/internal/app/run"
	"github.com/John-Robertt/avnfo/internal/audit"
	"github.com/John-Robertt/avnfo/internal/config"
	"github.com/John-Robertt/avnfo/internal/domain"
	"github.com/John-Robertt/avnfo/internal/query"
)

type runFlags struct {
	commonFlags
	template string
	noActor  bool
	noSeries bool
	noRename bool
	dryRun   bool
	filters  []string
}

func newRunCommand(env *cliEnv) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <root>",
		Short: "改写库中每个叶子目录的 NFO，并按模板重命名目录",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, env, f, args[0])
		},
	}
	f.registerRun(cmd)
	return cmd
}

// registerRun 注册 run 的全部参数；根命令直接接 <root> 时复用同一套参数。
func (f *runFlags) registerRun(cmd *cobra.Command) {
	f.register(cmd)
	fs := cmd.Flags()
	fs.StringVar(&f.template, "template", config.DefaultTemplate, "目录名模板")
	fs.BoolVar(&f.noActor, "no-actor", false, "关闭演员/标签别名替换")
	fs.BoolVar(&f.noSeries, "no-series", false, "关闭系列补全")
	fs.BoolVar(&f.noRename, "no-rename", false, "关闭目录重命名")
	fs.BoolVar(&f.dryRun, "dry-run", false, "只记录将要发生的修改，不写回、不重命名")
	fs.StringArrayVar(&f.filters, "filter", nil, "只处理满足条件的叶子：field:cond:value（可重复）")
}

func runRun(cmd *cobra.Command, env *cliEnv, f runFlags, root string) error {
	filters, err := parseFilters(f.filters)
	if err != nil {
		return err
	}

	cli := f.cliArgs(cmd, root)
	cli.Template = f.template
	cli.TemplateSet = cmd.Flags().Changed("template")
	cli.NoActor = f.noActor
	cli.NoSeries = f.noSeries
	cli.NoRename = f.noRename
	cli.DryRun = f.dryRun

	eff, err := loadConfig(env, cli)
	if err != nil {
		return err
	}
	tables, err := loadTables(eff)
	if err != nil {
		return err
	}
	if err := requireMappings(eff, tables); err != nil {
		return err
	}

	// UI 流与进度都走 stderr，stdout 只留给报告。
	sink, err := audit.Open(eff.Root, eff.LogDir, time.Now(), env.stderr)
	if err != nil {
		return exitWith(exitFailed, err)
	}
	defer sink.Close()

	var obs run.Observer
	if isTTY(env.stderr) {
		ui := newProgressUI(env.stderr)
		defer ui.stop()
		obs = ui
	}

	rr := run.ExecuteWithObserver(cmd.Context(), eff, run.Deps{
		Tables:  tables,
		Sink:    sink,
		Filters: filters,
	}, obs)

	if err := emitReport(env, rr); err != nil {
		return err
	}
	fmt.Fprintf(env.stderr, "audit: %s\n", rr.AuditLog)

	switch {
	case rr.Cancelled:
		return exitWith(exitCancelled, fmt.Errorf("已取消：completed=%d/%d", rr.Completed, rr.Total))
	case rr.Summary.Failed > 0:
		return exitWith(exitFailed, nil)
	}
	return nil
}

func parseFilters(raw []string) ([]query.Predicate, error) {
	out := make([]query.Predicate, 0, len(raw))
	for _, s := range raw {
		p, err := query.ParsePredicate(s)
		if err == nil {
			err = p.Validate()
		}
		if err != nil {
			return nil, exitWith(exitUsage, fmt.Errorf("--filter %q 无效：%w", s, err))
		}
		out = append(out, p)
	}
	return out, nil
}

func emitReport(env *cliEnv, rr domain.RunReport) error {
	if isTTY(env.stdout) {
		printSummary(env.stdout, rr)
		printFailures(env.stderr, rr)
		return nil
	}
	// stdout 非 TTY：stdout 只输出一个 RunReport JSON，摘要走 stderr。
	if err := writeJSON(env.stdout, rr); err != nil {
		return err
	}
	printSummary(env.stderr, rr)
	return nil
}

func printSummary(w io.Writer, rr domain.RunReport) {
	mode := ""
	if rr.DryRun {
		mode = " (dry-run)"
	}
	fmt.Fprintf(w, "完成%s：processed=%d skipped=%d failed=%d written=%d renamed=%d\n",
		mode, rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed, rr.Summary.Written, rr.Summary.Renamed,
	)
}

func printFailures(w io.Writer, rr domain.RunReport) {
	for _, it := range rr.Items {
		if it.Status != domain.StatusFailed {
			continue
		}
		key := it.Leaf
		if key == "" {
			key = "<root>"
		}
		fmt.Fprintf(w, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
	}
}
