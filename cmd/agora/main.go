// Package main provides the entry point for the agora CLI.
package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/agora/cmd/agora/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
