package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"mailscan/pkg/discovery/buildin"
)

func providersCommand(a *app) *cobra.Command {
	var tsv bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Lists the domains of the builtin provider table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, err := buildin.Default()
			if err != nil {
				return fmt.Errorf("could not load builtin provider table: %w", err)
			}

			if tsv {
				for _, d := range tbl.Domains() {
					p, _ := tbl.Provider(d)
					if _, err := fmt.Fprintf(a.stdout, "%s\t%s\t%s\n", d, p.ID, p.Status); err != nil {
						return fmt.Errorf("could not print providers: %w", err)
					}
				}

				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(a.stdout)
			t.AppendHeader(table.Row{"Domain", "Provider", "Status", "Servers"})
			for _, d := range tbl.Domains() {
				p, _ := tbl.Provider(d)
				t.AppendRow(table.Row{d, p.ID, p.Status, len(p.Servers)})
			}
			t.AppendFooter(table.Row{"", "", "Total", tbl.Len()})
			t.Render()

			return nil
		},
	}

	cmd.Flags().BoolVar(&tsv, "tsv", false, "Print tab separated lines instead of a table")

	return cmd
}
