package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phrazzld/scry-tasks/internal/domain"
	"github.com/phrazzld/scry-tasks/internal/store"
)

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the checksum of every record in the log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRepository(cmd, true, func(repo *store.Repository) error {
				report := repo.Verify()

				if jsonOutput {
					if err := writeJSON(cmd, report); err != nil {
						return err
					}
				} else {
					fmt.Fprint(cmd.OutOrStdout(), renderTable(integrityColumns, integrityCounts(report)))
					fmt.Fprintln(cmd.OutOrStdout())
					if len(report.Corrupt) > 0 {
						fmt.Fprintf(cmd.OutOrStdout(), "Corrupt records: %s\n", strings.Join(report.Corrupt, ", "))
					}
				}

				if report.Invalid > 0 {
					return fmt.Errorf("integrity check found %d invalid records", report.Invalid)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		statusFlag string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status domain.TaskStatus
			if statusFlag != "" {
				parsed, err := domain.ParseStatus(statusFlag)
				if err != nil {
					return err
				}
				status = parsed
			}

			return ctx.withRepository(cmd, true, func(repo *store.Repository) error {
				entries := make([]store.IndexEntry, 0, repo.Len())
				for _, entry := range repo.List() {
					if status == "" || entry.Status == status {
						entries = append(entries, entry)
					}
				}

				if jsonOutput {
					return writeJSON(cmd, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tasks")
					return nil
				}

				fmt.Fprint(cmd.OutOrStdout(), renderTable(taskColumns, entries))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Only list tasks with this status")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newCompactCommand(ctx *commandContext) *cobra.Command {
	var reindex bool

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Rewrite the log keeping only live records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRepository(cmd, false, func(repo *store.Repository) error {
				if reindex {
					n, err := repo.Reindex()
					if err != nil {
						return fmt.Errorf("reindex failed: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Reindexed %d records\n", n)
				}

				report, err := repo.Compact()
				if err != nil {
					return fmt.Errorf("compaction failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Compacted %d records: %d -> %d bytes (%d reclaimed)\n",
					report.Records, report.BytesBefore, report.BytesAfter, report.Reclaimed())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&reindex, "reindex", false, "Rebuild the index from the log before compacting")
	return cmd
}
