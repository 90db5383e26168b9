package main

import (
	"os"

	"github.com/smallbiznis/promptly/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
