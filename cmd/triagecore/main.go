package main

import (
	"os"

	"triagecore/cmd/triagecore/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
