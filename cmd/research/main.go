// Package main provides the research CLI.
//
// Usage:
//
//	research start    --config run.json
//	research resume   --run-id <id>
//	research list
//	research progress --run-id <id> [--csv survivors.csv] [--markdown]
//	research backfill --run-id <id>
//	research verify   --run-id <id> [--sample N]
//
// Exit codes: 0 completed or paused, 1 failure, 2 usage error, 3 run locked.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"orb-lab/internal/checkpoint"
	"orb-lab/internal/domain"
	"orb-lab/internal/research"
)

// Exit codes
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
	exitLocked = 3
)

// usageError marks errors caused by bad invocation.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

var commands = map[string]func(ctx context.Context, args []string) error{
	"start":    cmdStart,
	"resume":   cmdResume,
	"list":     cmdList,
	"progress": cmdProgress,
	"backfill": cmdBackfill,
	"verify":   cmdVerify,
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return exitUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		printUsage()
		return exitUsage
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The first signal pauses the run after the candidate in flight.
	// A second one exits immediately.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "\nreceived %v, pausing after the current candidate (again to force)\n", sig)
		cancel()
		<-sigCh
		os.Exit(exitFailed)
	}()

	err := cmd(ctx, args[1:])
	code := exitCode(err)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return code
}

func exitCode(err error) int {
	var usage usageError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, checkpoint.ErrLockContention):
		return exitLocked
	case errors.As(err, &usage), errors.Is(err, domain.ErrInvalidConfig), errors.Is(err, research.ErrRunNotResumable):
		return exitUsage
	}
	return exitFailed
}

func printUsage() {
	fmt.Fprint(os.Stderr, `usage: research <command> [flags]

commands:
  start     start a new run from a JSON run config
  resume    continue a paused or interrupted run
  list      list runs
  progress  show run progress and survivors
  backfill  insert missing survivors of a run
  verify    replay recorded candidates and compare metrics

run "research <command> -h" for flags
`)
}
