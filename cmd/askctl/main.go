// Command askctl asks the configured providers from the terminal and inspects
// how the router classifies and scores answers.
//
// Usage:
//
//	askctl ask [--stream] [--json] <question>
//	askctl classify <question>
//	askctl score [--category c | --question q] < results.json
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(defaultEnv()).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
