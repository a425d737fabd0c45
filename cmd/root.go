package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meziane/drclone/internal/logger"
)

// ConfigFile is the path to the YAML settings file.
var (
	ConfigFile string

	rootCmd = &cobra.Command{
		Use:   "drclone",
		Short: "Backup and disaster-recovery cloning for a containerized code-collaboration server",
		Long: `drclone drives the server's own backup tooling: it produces and
ships backup archives off-host, and rebuilds a replica from the latest
archive with a verified, fail-safe restore sequence.`,
	}
)

// Execute runs the root command.
func Execute() {
	log, err := logger.Init()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		log.Error("command failed", "error", err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&ConfigFile, "config", "c", "/etc/drclone/settings.yaml", "path to YAML settings file")
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(cloneCmd)
}
