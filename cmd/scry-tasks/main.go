// Package main implements the scry-tasks command: a task dispatch server
// backed by a checksummed record log, plus offline tools to inspect and
// maintain that log.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
