package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the zele application
var rootCmd = &cobra.Command{
	Use:   "zele",
	Short: "Fast local-first access to your mail accounts",
	Long: `zele is a mail sync client. It keeps a local cache of threads and
messages for one or more accounts, serves listings from that cache when the
server-side revision markers say nothing changed, and can watch an account's
change feed for newly arrived mail.`,
	SilenceUsage: true,
}

var configPath string

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "zele version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.config/zele/config.yaml)")

	rootCmd.AddCommand(newThreadsCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newAccountsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
