// Command plugin-lint checks ledger plugin directories for code that
// bypasses the edit token or reaches past the service boundary.
package main

import (
	"fmt"
	"io"
	"os"

	"ledgercore/internal/validation"
)

var exitFunc = os.Exit

func main() {
	exitFunc(run(os.Args, os.Stderr, validation.ValidatePluginDirectory))
}

func run(args []string, stderr io.Writer, validate func(string) []validation.Error) int {
	if len(args) < 2 {
		prog := "plugin-lint"
		if len(args) > 0 {
			prog = args[0]
		}
		_, _ = fmt.Fprintf(stderr, "Usage: %s <plugin-directory>...\n", prog)
		return 2
	}

	var total int
	for _, dir := range args[1:] {
		errs := validate(dir)
		total += len(errs)
		for _, e := range errs {
			if _, err := fmt.Fprintf(stderr, "%s:%d: %s\n", e.File, e.Line, e.Message); err != nil {
				return 1
			}
			if e.Code != "" {
				if _, err := fmt.Fprintf(stderr, "\t%s\n", e.Code); err != nil {
					return 1
				}
			}
		}
	}
	if total > 0 {
		_, _ = fmt.Fprintf(stderr, "found %d plugin violations\n", total)
		return 1
	}
	return 0
}
