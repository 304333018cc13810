package main

import (
	"os"

	"github.com/rushairer/bulkcopy/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
