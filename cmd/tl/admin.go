package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ticketline/internal/admin/sorting"
	admintable "ticketline/internal/admin/table"
	"ticketline/internal/admin/workflow"
	"ticketline/internal/app"
	"ticketline/internal/domain"
	"ticketline/internal/entities"
	"ticketline/internal/gateway"
)

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage entities through the administration API",
	}
	cmd.AddCommand(adminKindsCmd())
	for _, kind := range entities.Kinds() {
		cmd.AddCommand(adminKindCmd(kind))
	}
	return cmd
}

func adminKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List manageable entity kinds",
		RunE: func(cmd *cobra.Command, args []string) error {
			type row struct {
				Kind    string   `json:"kind"`
				Name    string   `json:"name"`
				Columns []string `json:"columns"`
			}
			var rows []row
			for _, kind := range entities.Kinds() {
				b, err := entities.Lookup(kind)
				if err != nil {
					return err
				}
				cols := make([]string, 0, len(b.Fields))
				for _, f := range b.Fields {
					cols = append(cols, f.Path)
				}
				rows = append(rows, row{Kind: b.Kind, Name: b.Name, Columns: cols})
			}
			if isJSON() {
				return printJSON(rows)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Kind", "Name", "Columns"})
			for _, r := range rows {
				tw.AppendRow(table.Row{r.Kind, r.Name, strings.Join(r.Columns, ", ")})
			}
			tw.Render()
			return nil
		},
	}
}

func adminKindCmd(kind string) *cobra.Command {
	b, _ := entities.Lookup(kind)
	cmd := &cobra.Command{
		Use:   kind,
		Short: fmt.Sprintf("Manage %s (%s records)", kind, strings.ToLower(b.Name)),
	}
	cmd.AddCommand(adminListCmd(kind))
	cmd.AddCommand(adminCreateCmd(kind))
	cmd.AddCommand(adminEditCmd(kind))
	cmd.AddCommand(adminToggleCmd(kind))
	cmd.AddCommand(adminDeleteCmd(kind))
	return cmd
}

func adminListCmd(kind string) *cobra.Command {
	var sortBy string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBinding(cmd.Context(), kind, func(ctx context.Context, c *app.Context, b entities.Binding) error {
				state, err := parseSort(b, sortBy)
				if err != nil {
					return err
				}
				tc := c.Table(b, nil)
				if err := tc.Reload(ctx); err != nil && gateway.IsSessionExpired(err) {
					return err
				}
				tc.SetSort(state)
				view := tc.View()
				if isJSON() {
					return printJSON(view.Rows)
				}
				admintable.Render(os.Stdout, view, admintable.RenderOptions{
					Resolver: c.Resolver(),
					Color:    isatty.IsTerminal(os.Stdout.Fd()),
				})
				if view.Err != nil {
					fmt.Fprintln(os.Stderr, "warning:", gateway.UserMessage(view.Err))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sortBy, "sort", "", "sort column path, prefix with - for descending")
	return cmd
}

func adminCreateCmd(kind string) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a record",
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseSets(sets)
			if err != nil {
				return err
			}
			return withBinding(cmd.Context(), kind, func(ctx context.Context, c *app.Context, b entities.Binding) error {
				w := c.Workflow(b, nil)
				if err := w.OpenCreate(); err != nil {
					return err
				}
				return submitDraft(ctx, w, values)
			})
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field value as key=value (repeatable, JSON values accepted)")
	return cmd
}

func adminEditCmd(kind string) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseSets(sets)
			if err != nil {
				return err
			}
			return withBinding(cmd.Context(), kind, func(ctx context.Context, c *app.Context, b entities.Binding) error {
				record, err := c.Entities.Find(ctx, b, args[0])
				if err != nil {
					return err
				}
				w := c.Workflow(b, nil)
				if err := w.OpenEdit(record); err != nil {
					return err
				}
				return submitDraft(ctx, w, values)
			})
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field value as key=value (repeatable, JSON values accepted)")
	return cmd
}

func adminToggleCmd(kind string) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Activate or deactivate a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBinding(cmd.Context(), kind, func(ctx context.Context, c *app.Context, b entities.Binding) error {
				record, err := c.Entities.Find(ctx, b, args[0])
				if err != nil {
					return err
				}
				w := c.Workflow(b, nil)
				if err := w.OpenToggle(record); err != nil {
					return err
				}
				return submit(ctx, w)
			})
		},
	}
}

func adminDeleteCmd(kind string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBinding(cmd.Context(), kind, func(ctx context.Context, c *app.Context, b entities.Binding) error {
				record, err := c.Entities.Find(ctx, b, args[0])
				if err != nil {
					return err
				}
				w := c.Workflow(b, nil)
				if err := w.OpenDelete(record); err != nil {
					return err
				}
				if !yes {
					answer, err := readLine(fmt.Sprintf("Delete %s %s? [y/N] ", strings.ToLower(b.Name), args[0]))
					if err != nil {
						return err
					}
					if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
						_ = w.Cancel()
						fmt.Println("Cancelled")
						return nil
					}
				}
				return submit(ctx, w)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func withBinding(ctx context.Context, kind string, fn func(context.Context, *app.Context, entities.Binding) error) error {
	return withApp(ctx, func(ctx context.Context, c *app.Context) error {
		b, err := c.Binding(kind)
		if err != nil {
			return err
		}
		return fn(ctx, c, b)
	})
}

func submitDraft(ctx context.Context, w *workflow.Controller, values domain.Record) error {
	for k, v := range values {
		if err := w.Set(k, v); err != nil {
			return err
		}
	}
	return submit(ctx, w)
}

// submit runs the open workflow and prints its notice. Rejections surface the
// server or validation message rather than the transport error.
func submit(ctx context.Context, w *workflow.Controller) error {
	if err := w.Submit(ctx); err != nil {
		if gateway.IsSessionExpired(err) {
			return err
		}
		if msg := w.State().Message; msg != "" {
			return errors.New(msg)
		}
		return err
	}
	fmt.Println(w.Notice())
	return nil
}

// parseSets turns key=value pairs into draft values. A value that parses as JSON is
// used as such, so numbers, booleans and arrays keep their type.
func parseSets(sets []string) (domain.Record, error) {
	out := domain.Record{}
	for _, s := range sets {
		key, raw, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", s)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}

func parseSort(b entities.Binding, column string) (sorting.State, error) {
	column = strings.TrimSpace(column)
	if column == "" {
		return sorting.State{}, nil
	}
	dir := sorting.Ascending
	if strings.HasPrefix(column, "-") {
		dir = sorting.Descending
		column = column[1:]
	}
	if !b.HasField(column) {
		return sorting.State{}, fmt.Errorf("%s has no column %q", strings.ToLower(b.Name), column)
	}
	return sorting.State{Path: column, Direction: dir}, nil
}

func isJSON() bool {
	return viper.GetBool("json")
}
