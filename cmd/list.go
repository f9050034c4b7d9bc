package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [system]",
	Short: "List the files a mirror carries for a system",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		query, _ := cmd.Flags().GetString("search")
		urls, _ := cmd.Flags().GetBool("urls")

		client := newMirrorClient()
		files := client.Search(context.Background(), args[0], query)
		if len(files) == 0 {
			fmt.Fprintln(os.Stderr, "No files found. Check the system name with 'romfetch systems'.")
			os.Exit(1)
		}

		for _, f := range files {
			if urls {
				fmt.Printf("%s\t%s\n", f.Name, f.URL)
			} else {
				fmt.Println(f.Name)
			}
		}
		fmt.Fprintf(os.Stderr, "%d files\n", len(files))
	},
}

func init() {
	listCmd.Flags().StringP("search", "s", "", "filter by a case-insensitive substring")
	listCmd.Flags().Bool("urls", false, "print download URLs as well")
}
