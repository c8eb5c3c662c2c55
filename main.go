package main

import (
	"os"

	"github.com/conneroisu/routefs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
