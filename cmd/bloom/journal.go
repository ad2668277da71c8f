package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vbonduro/bloom/internal/auth"
)

func newJournalCmd(opts *rootOptions) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List your discoveries, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.close()

			u := a.auth.CurrentUser()
			if u == nil {
				return auth.ErrNotSignedIn
			}

			ds, err := a.journal.List(cmd.Context(), u.ID, query)
			if err != nil {
				return err
			}
			if len(ds) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No discoveries yet.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDATE\tNAME")
			for _, d := range ds {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.ShortDate(), d.Name)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			stats := a.journal.Stats(cmd.Context(), u.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d discoveries in total\n", stats.TotalDiscoveries)
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "only list discoveries whose name contains this text")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show <id>",
			Short: "Show one discovery",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cmd.Context(), opts.cfg, opts.logger)
				if err != nil {
					return err
				}
				defer a.close()

				u := a.auth.CurrentUser()
				if u == nil {
					return auth.ErrNotSignedIn
				}
				d, err := a.journal.Get(cmd.Context(), u.ID, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n\n%s\n", d.Name, d.FormattedDate(), d.AISummary)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a discovery and its photo",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cmd.Context(), opts.cfg, opts.logger)
				if err != nil {
					return err
				}
				defer a.close()

				u := a.auth.CurrentUser()
				if u == nil {
					return auth.ErrNotSignedIn
				}
				if err := a.journal.Delete(cmd.Context(), u.ID, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Deleted.")
				return nil
			},
		},
	)
	return cmd
}
