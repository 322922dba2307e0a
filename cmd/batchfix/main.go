package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AI-Template-SDK/senso-batchfix/internal/cli"
)

var version = "0.1.0-dev"

func main() {
	// Entities committed before an interrupt stay committed; the in-flight
	// entity's transaction rolls back through the ordinary error path.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
