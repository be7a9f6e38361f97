package main

import (
	"os"

	"github.com/spigell/job-preprocessor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
