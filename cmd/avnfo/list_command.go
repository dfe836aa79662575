package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/avnfo/internal/app"
	"github.com/John-Robertt/avnfo/internal/extract"
	"github.com/John-Robertt/avnfo/internal/query"
	"github.com/John-Robertt/avnfo/internal/scan"
)

// listRow 是 list 命令的 JSON 行。
type listRow struct {
	Leaf     string   `json:"leaf"`
	Doc      string   `json:"doc"`
	Num      string   `json:"num"`
	Title    string   `json:"title"`
	Actors   []string `json:"actors"`
	Series   string   `json:"series"`
	Rating   string   `json:"rating"`
	Release  string   `json:"release"`
	Filename string   `json:"filename"`
}

type listOutput struct {
	Root      string    `json:"root"`
	Total     int       `json:"total"`
	Matched   int       `json:"matched"`
	Cancelled bool      `json:"cancelled"`
	Rows      []listRow `json:"rows"`
}

func newListCommand(env *cliEnv) *cobra.Command {
	var f commonFlags
	var filters []string
	var sortBy string
	cmd := &cobra.Command{
		Use:   "list <root>",
		Short: "按条件过滤、排序并列出文档字段（只读）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			preds, err := parseFilters(filters)
			if err != nil {
				return err
			}
			order, err := query.ParseOrder(sortBy)
			if err != nil {
				return exitWith(exitUsage, err)
			}

			eff, err := loadConfig(env, f.cliArgs(cmd, args[0]))
			if err != nil {
				return err
			}
			tables, err := loadTables(eff)
			if err != nil {
				return err
			}

			recs, err := app.Collect(cmd.Context(), eff.Root, collectOptions(eff, extract.Options{
				Actors:   tables.Actor,
				InferNum: eff.InferNum,
			}))
			if err != nil {
				return exitWith(exitFailed, err)
			}
			rows := query.Filter(recs.Rows, preds...)
			query.Sort(rows, order)

			out := listOutput{Root: eff.Root, Total: recs.Total, Matched: len(rows), Cancelled: recs.Cancelled, Rows: make([]listRow, 0, len(rows))}
			for _, r := range rows {
				out.Rows = append(out.Rows, listRow{
					Leaf:     scan.Rel(r.Leaf),
					Doc:      app.RelDoc(eff.Root, r.Leaf.Doc),
					Num:      r.Fields.Num,
					Title:    r.Fields.Title,
					Actors:   append([]string{}, r.Fields.Actors...),
					Series:   r.Fields.Series,
					Rating:   r.Fields.Rating,
					Release:  r.Fields.Release,
					Filename: r.Fields.Filename,
				})
			}

			if isTTY(env.stdout) {
				fmt.Fprintln(env.stdout, renderListTable(out.Rows))
				fmt.Fprintf(env.stdout, "matched=%d total=%d\n", out.Matched, out.Total)
			} else if err := writeJSON(env.stdout, out); err != nil {
				return err
			}
			for _, it := range recs.Failures {
				fmt.Fprintf(env.stderr, "%s %s: %s\n", it.Leaf, it.ErrorCode, it.ErrorMsg)
			}
			if recs.Cancelled {
				return exitWith(exitCancelled, fmt.Errorf("已取消：completed=%d/%d", recs.Completed, recs.Total))
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "过滤条件 field:cond:value（可重复，全部满足才保留）")
	cmd.Flags().StringVar(&sortBy, "sort", "", "排序：filename|actors|series|rating|release")
	return cmd
}

func renderListTable(rows []listRow) string {
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, []string{r.Leaf, r.Num, truncate(r.Title, 40), strings.Join(r.Actors, ","), r.Series, r.Rating, r.Release})
	}
	return renderTable(
		[]string{"leaf", "num", "title", "actors", "series", "rating", "release"},
		cells,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}
