// Package main is the entry point for the browsergate coordination gateway.
package main

import (
	"fmt"
	"os"

	"github.com/fenwick-labs/browsergate/cmd/browsergate/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
