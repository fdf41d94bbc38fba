package main

import (
	"os"

	"tradelog/cmd/tradelogctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
