package main

import (
	"os"

	"github.com/meetpointio/meetpoint/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
