package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/romfetch-downloader/romfetch/internal/archive"
	"github.com/romfetch-downloader/romfetch/internal/autofetch"
	"github.com/romfetch-downloader/romfetch/internal/rom"
)

var autoCmd = &cobra.Command{
	Use:   "auto [system] [name]...",
	Short: "Automatically acquire ROMs from archive.org",
	Long: `auto searches archive.org for each named ROM, picks the most plausible
item and file, downloads it with retries and unpacks containers into the
configured output tree. Fetches run in the background and progress is
polled until every one finishes.`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		system := args[0]
		output, _ := cmd.Flags().GetString("output")

		cfg := settings.Archive
		if output != "" {
			cfg.OutputRoot = output
		}

		fetcher := autofetch.New(archive.NewClient(cfg), cfg)
		registry := autofetch.NewRegistry(fetcher)

		ids := make([]string, 0, len(args)-1)
		for _, name := range args[1:] {
			id := registry.Start(context.Background(), rom.Info{Name: name, SystemName: system})
			ids = append(ids, id)
		}

		failed := 0
		for _, id := range ids {
			state := pollTask(registry, id)
			switch state.Status {
			case autofetch.TaskComplete:
				fmt.Printf("%s -> %s\n", state.RomName, state.ResultPath)
			default:
				fmt.Fprintf(os.Stderr, "%s failed: %s\n", state.RomName, state.Error)
				failed++
			}
		}
		if failed > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	autoCmd.Flags().StringP("output", "o", "", "output root (default from settings)")
}

// pollTask waits for one background fetch, echoing progress changes.
func pollTask(registry *autofetch.Registry, id string) autofetch.TaskState {
	lastPercent := -1
	for {
		state, ok := registry.Get(id)
		if !ok || state.Status != autofetch.TaskRunning {
			if lastPercent >= 0 {
				fmt.Println()
			}
			return state
		}
		if state.Percent != lastPercent {
			fmt.Printf("\r%s  %3d%%  %s        ", state.RomName, state.Percent, state.Message)
			lastPercent = state.Percent
		}
		time.Sleep(200 * time.Millisecond)
	}
}
