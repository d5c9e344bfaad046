// Command plotline is the entry point for the Plotline writing core. It
// provides a CLI (via Cobra) for indexing, searching and planning a book, and
// an HTTP server for the book editor.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/plotline-go/cmd/plotline/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
