// Package main provides the entry point for the hybrisd server CLI.
package main

import (
	"fmt"
	"os"

	"github.com/rezkaaufar/hybrid-search-service/cmd/hybrisd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
