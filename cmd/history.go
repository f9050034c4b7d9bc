package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/romfetch-downloader/romfetch/internal/config"
	"github.com/romfetch-downloader/romfetch/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent downloads",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := history.Open(config.GetHistoryPath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening history: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		entries, err := store.Recent(limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading history: %v\n", err)
			os.Exit(1)
		}
		if len(entries) == 0 {
			fmt.Println("No downloads recorded yet.")
			return
		}

		for _, e := range entries {
			fmt.Printf("%s  %-12s  %-10s  %s\n",
				e.CreatedAt.Local().Format("2006-01-02 15:04"),
				e.Status,
				humanize.Bytes(uint64(e.Bytes)),
				e.RomName)
		}
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 25, "number of entries to show")
}
