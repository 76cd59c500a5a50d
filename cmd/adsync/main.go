package main

import (
	"os"

	"github.com/ignite/adinsight/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
