// Package main provides the flowerstory command-line client.
package main

import (
	"fmt"
	"os"

	"github.com/pinkittys/flowerstory/cmd/flowerstory-cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
