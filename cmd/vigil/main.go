package main

import (
	"os"

	"github.com/vigilhq/vigil/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
