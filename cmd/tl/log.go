package main

import (
	"context"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"ticketline/internal/repo"
)

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Local journal of admin changes",
	}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var kind, outcome string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				entries, err := r.ListJournal(ctx, repo.JournalFilter{EntityKind: kind, Outcome: outcome, Limit: n})
				if err != nil {
					return err
				}
				if isJSON() {
					return printJSON(entries)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"#", "Time", "Type", "Kind", "Record", "Actor", "Outcome", "Message"})
				for _, e := range entries {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind, e.EntityID, e.Actor, e.Outcome, e.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of entries")
	cmd.Flags().StringVar(&kind, "kind", "", "entity kind filter, e.g. events")
	cmd.Flags().StringVar(&outcome, "outcome", "", "outcome filter: ok or rejected")
	return cmd
}
