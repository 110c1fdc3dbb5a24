package main

import (
	"os"

	"github.com/alphauslabs/buckshot/cmd/server/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
