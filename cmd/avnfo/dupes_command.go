package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/avnfo/internal/app"
	"github.com/John-Robertt/avnfo/internal/config"
	"github.com/John-Robertt/avnfo/internal/dupes"
	"github.com/John-Robertt/avnfo/internal/extract"
	"github.com/John-Robertt/avnfo/internal/scan"
)

func newDupesCommand(env *cliEnv) *cobra.Command {
	var f commonFlags
	var by string
	cmd := &cobra.Command{
		Use:   "dupes <root>",
		Short: "按 num 或 series 查找重复文档（只读）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := dupes.ParseField(by)
			if err != nil {
				return exitWith(exitUsage, err)
			}
			eff, err := loadConfig(env, f.cliArgs(cmd, args[0]))
			if err != nil {
				return err
			}

			rep, err := dupes.Detect(cmd.Context(), eff.Root, field, collectOptions(eff, extract.Options{InferNum: eff.InferNum}))
			if err != nil {
				return exitWith(exitFailed, err)
			}

			if isTTY(env.stdout) {
				rows := make([][]string, 0, len(rep.Groups)*2)
				for _, r := range rep.Rows() {
					rows = append(rows, []string{r.Key, r.Doc})
				}
				fmt.Fprintln(env.stdout, renderTable([]string{string(field), "doc"}, rows, nil))
				fmt.Fprintf(env.stdout, "groups=%d docs=%d\n", len(rep.Groups), len(rows))
			} else if err := writeJSON(env.stdout, rep); err != nil {
				return err
			}
			for _, it := range rep.Failures {
				fmt.Fprintf(env.stderr, "%s %s: %s\n", it.Leaf, it.ErrorCode, it.ErrorMsg)
			}
			if rep.Cancelled {
				return exitWith(exitCancelled, fmt.Errorf("已取消：completed=%d/%d", rep.Completed, rep.Total))
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&by, "by", string(dupes.FieldNum), "分组字段：num 或 series")
	return cmd
}

func collectOptions(eff config.EffectiveConfig, ex extract.Options) app.CollectOptions {
	return app.CollectOptions{
		Scan: scan.Options{
			DocExt:      eff.DocExt,
			ExcludeDirs: eff.ExcludeDirs,
			LogDir:      eff.LogDir,
		},
		Extract: ex,
		Workers: eff.Workers,
	}
}
