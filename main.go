package main

import (
	"os"

	"backend_inventory/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
