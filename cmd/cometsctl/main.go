package main

import (
	"os"

	"github.com/comets-analytics/comets-batch/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
