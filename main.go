// sshlure - a low-interaction SSH honeypot that records attempted logins.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sshlure/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "sshlure: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
