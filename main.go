package main

import "github.com/romfetch-downloader/romfetch/cmd"

func main() {
	cmd.Execute()
}
