package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	migrator "github.com/Maksumys/schema-migrator"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	exitOK             = 0
	exitFailure        = 1
	exitLockContention = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(&rootOptions{getenv: os.Getenv})
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		reportError(stderr, err)
		return exitCode(err)
	}
	return exitOK
}

func reportError(w io.Writer, err error) {
	var execErr *migrator.ExecutionError
	if errors.As(err, &execErr) {
		fmt.Fprintf(w, "failed migration: %s\n", execErr.MigrationID)
		if state := execErr.SQLState(); state != "" {
			fmt.Fprintf(w, "sqlstate: %s\n", state)
		}
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

func exitCode(err error) int {
	if errors.Is(err, migrator.ErrLockContention) {
		return exitLockContention
	}
	return exitFailure
}
