// Command mailblast sends a batch of copies of one message through one or
// more SMTP accounts.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// exitAborted is the conventional code for a run stopped by SIGINT.
const exitAborted = 130

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, errAborted) {
		return exitAborted
	}
	return 1
}
