package main

import (
	"os"

	"github.com/mozocode/On-The-Way-Rebuild/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
