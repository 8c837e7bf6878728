package main

import (
	"os"

	"github.com/scottymoll/luce/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
