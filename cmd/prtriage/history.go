package main

import (
	"github.com/spf13/cobra"

	"github.com/jingkaihe/prtriage/pkg/history"
	"github.com/jingkaihe/prtriage/pkg/presenter"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect archived triage runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived triage runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dbPath, err := history.DefaultDBPath()
		if err != nil {
			return err
		}
		st, err := history.NewStore(ctx, dbPath)
		if err != nil {
			return err
		}
		defer st.Close()

		summaries, err := st.List(ctx)
		if err != nil {
			return err
		}
		p := presenter.New()
		if len(summaries) == 0 {
			p.Info("No archived runs.")
			return nil
		}
		for _, s := range summaries {
			p.Info("%s  %s  %s", s.ID, s.CreatedAt.Format("2006-01-02 15:04:05"), s.ReviewRef)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the report of one archived run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dbPath, err := history.DefaultDBPath()
		if err != nil {
			return err
		}
		st, err := history.NewStore(ctx, dbPath)
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := st.Get(ctx, args[0])
		if err != nil {
			return err
		}
		presenter.New().Report(rec.Report)
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
}
