package main

import (
	"os"

	"cryptoLevSim/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
