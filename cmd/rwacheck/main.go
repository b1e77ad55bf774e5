// Command rwacheck drives the banking demo application through scenarios
// and verifies what it persisted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sergheinarushev/realworld-app/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "rwacheck: %v\n", err)
		cancel()
		os.Exit(cli.GetExitCode(err))
	}
}
