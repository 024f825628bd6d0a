package main

import (
	"os"

	"github.com/RezaEskandarii/taskfire/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
