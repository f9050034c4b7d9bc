package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/romfetch-downloader/romfetch/internal/archive"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search archive.org for fallback copies",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		system, _ := cmd.Flags().GetString("system")
		showFiles, _ := cmd.Flags().GetBool("files")

		client := archive.NewClient(settings.Archive)
		items := client.Search(context.Background(), strings.Join(args, " "), system)
		if len(items) == 0 {
			fmt.Fprintln(os.Stderr, "No items found.")
			os.Exit(1)
		}

		for _, item := range items {
			fmt.Printf("%s\t%s\n", item.Identifier, item.Title)
			if !showFiles {
				continue
			}
			for _, f := range client.ItemFiles(context.Background(), item.Identifier) {
				fmt.Printf("    %s\t%s\n", f.Name, humanize.Bytes(uint64(f.Size)))
			}
		}
	},
}

func init() {
	searchCmd.Flags().String("system", "", "scope the search with a system name")
	searchCmd.Flags().Bool("files", false, "list each item's files as well")
}
