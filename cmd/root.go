package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/romfetch-downloader/romfetch/internal/catalog"
	"github.com/romfetch-downloader/romfetch/internal/config"
	"github.com/romfetch-downloader/romfetch/internal/logging"
	"github.com/romfetch-downloader/romfetch/internal/mirror"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var settings *config.Settings

var rootCmd = &cobra.Command{
	Use:     "romfetch",
	Short:   "A ROM download manager for preservation mirrors",
	Long:    `romfetch resolves ROM sets against preservation mirrors, downloads them
sequentially with resume and CRC-32 verification, and falls back to
archive.org when the primary mirror does not carry a file.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		logging.Init(debug)

		var err error
		settings, err = config.LoadSettings()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not load settings: %v\n", err)
			settings = config.DefaultSettings()
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.AddCommand(systemsCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(autoCmd)
	rootCmd.AddCommand(historyCmd)
}

// newMirrorClient builds a mirror client from the loaded settings.
func newMirrorClient() *mirror.Client {
	client := mirror.New(catalog.Default())
	if settings != nil && settings.Network.UserAgent != "" {
		client.UserAgent = settings.Network.UserAgent
	}
	return client
}
