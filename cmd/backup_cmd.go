package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/meziane/drclone/internal/clone"
	"github.com/meziane/drclone/internal/operations"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create a backup archive and ship it to the remote storage host",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		op, err := operations.NewOperator(ctx, ConfigFile)
		if err != nil {
			operations.ReportConfigFailure(ctx, err)
			os.Exit(1)
		}
		outcome, err := op.Backup(ctx)
		if err != nil {
			return err
		}
		if outcome == clone.OutcomeAlreadyRunning {
			os.Exit(1)
		}
		return nil
	},
}
