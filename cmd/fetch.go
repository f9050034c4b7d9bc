package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/romfetch-downloader/romfetch/internal/config"
	"github.com/romfetch-downloader/romfetch/internal/download"
	"github.com/romfetch-downloader/romfetch/internal/history"
	"github.com/romfetch-downloader/romfetch/internal/mirror"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [system] [name]...",
	Short: "Download ROMs for a system from the primary mirror",
	Long: `fetch lists the mirror directory for a system, selects the files whose
names contain any of the given name fragments, and downloads them one at
a time with resume support and CRC verification. With no names, --all
downloads the entire set.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		system := args[0]
		names := args[1:]
		all, _ := cmd.Flags().GetBool("all")
		output, _ := cmd.Flags().GetString("output")
		delaySeconds, _ := cmd.Flags().GetInt("delay")

		if len(names) == 0 && !all {
			fmt.Fprintln(os.Stderr, "Error: give at least one name fragment, or --all for the full set.")
			os.Exit(1)
		}

		// One transfer loop per machine keeps the mirror pacing honest.
		isMaster, err := config.AcquireLock()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error acquiring lock: %v\n", err)
			os.Exit(1)
		}
		if !isMaster {
			fmt.Fprintln(os.Stderr, "Error: another romfetch download run is already active.")
			os.Exit(1)
		}
		defer config.ReleaseLock()

		if output == "" {
			output = settings.General.DownloadDir
		}
		if !cmd.Flags().Changed("delay") {
			delaySeconds = settings.General.DownloadDelay
		}

		client := newMirrorClient()
		files := client.ListSystem(context.Background(), system)
		if len(files) == 0 {
			fmt.Fprintln(os.Stderr, "No files found. Check the system name with 'romfetch systems'.")
			os.Exit(1)
		}

		queue := download.NewQueue(client.HTTPClient, client.UserAgent)
		for _, f := range selectFiles(files, names, all) {
			queue.QueueRom(f.Name, f.URL, output, "", f.Size, system)
		}
		if len(queue.Tasks()) == 0 {
			fmt.Fprintln(os.Stderr, "Nothing matched.")
			os.Exit(1)
		}

		if store, err := history.Open(config.GetHistoryPath()); err == nil {
			queue.Recorder = store
			defer store.Close()
		} else {
			fmt.Fprintf(os.Stderr, "Warning: history disabled: %v\n", err)
		}

		fmt.Printf("Queued %d files -> %s\n", len(queue.Tasks()), output)
		progress, err := queue.Run(context.Background(), printProgress, time.Duration(delaySeconds)*time.Second)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\nDone: %d complete, %d failed, %d cancelled\n",
			progress.Completed, progress.Failed, progress.Cancelled)
		if progress.Failed > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	fetchCmd.Flags().Bool("all", false, "download every file in the set")
	fetchCmd.Flags().StringP("output", "o", "", "download directory (default from settings)")
	fetchCmd.Flags().IntP("delay", "d", 0, "seconds to wait between files, 0-60")
}

// selectFiles picks the files whose names contain any of the fragments,
// case-insensitively. With all set, everything matches.
func selectFiles(files []mirror.RemoteFile, names []string, all bool) []mirror.RemoteFile {
	if all && len(names) == 0 {
		return files
	}
	var selected []mirror.RemoteFile
	for _, f := range files {
		lower := strings.ToLower(f.Name)
		for _, name := range names {
			if strings.Contains(lower, strings.ToLower(name)) {
				selected = append(selected, f)
				break
			}
		}
	}
	return selected
}

// printProgress renders one task's state on a single rewritten line.
func printProgress(p *download.Progress) {
	task := p.CurrentTask
	if task == nil {
		return
	}
	switch task.Status {
	case download.StatusDownloading:
		if task.TotalBytes > 0 {
			fmt.Printf("\r[%d/%d] %s  %s / %s",
				p.Finished()+1, p.TotalCount, task.RomName,
				humanize.Bytes(uint64(task.DownloadedBytes)), humanize.Bytes(uint64(task.TotalBytes)))
		} else {
			fmt.Printf("\r[%d/%d] %s  %s",
				p.Finished()+1, p.TotalCount, task.RomName,
				humanize.Bytes(uint64(task.DownloadedBytes)))
		}
	default:
		fmt.Printf("\r[%d/%d] %s  %s%s\n",
			p.Finished(), p.TotalCount, task.RomName, task.Status, clearLine)
	}
}

// clearLine pads over leftovers from the progress line.
const clearLine = "          "
