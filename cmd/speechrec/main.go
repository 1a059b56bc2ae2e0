package main

import (
	"os"

	"github.com/msto63/speechrec/cmd/speechrec/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
