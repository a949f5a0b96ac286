package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxpanel/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "inboxpanel",
	Short: "Links Gmail accounts and keeps a local copy of their inboxes",
	Long: `inboxpanel connects a user's Gmail account through Google OAuth, keeps the
most recent inbox messages in a local database and streams new-mail
notifications to the dashboard.

Settings come from flags, environment variables, an optional config.yaml
and an optional .env file, in that order of precedence.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxpanel version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String(config.ConfigFileFlag, "", "Path to a config file (default ./config.yaml if present)")
	flags.String("database-driver", "", "Database driver: sqlite or postgres (DATABASE_DRIVER)")
	flags.String("database-url", "", "Database DSN or connection string (DATABASE_URL)")
	flags.String("log-level", "", "Log level: debug, info, warn or error (LOG_LEVEL)")
	flags.String("log-format", "", "Log format: text or json (LOG_FORMAT)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "inboxpanel version %s\n", version)
		},
	}
}
