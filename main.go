package main

import (
	"os"

	"github.com/pragma-labs/feed-relayer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
