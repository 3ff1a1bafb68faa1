package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/sheetflow/sheetflow/internal/cli"
	"github.com/sheetflow/sheetflow/pkg/sheetflow"
)

func main() {
	// Recover from panics to ensure graceful exits with stack traces
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n%s\n", r, debug.Stack())
			os.Exit(sheetflow.ExitPanic)
		}
	}()

	if err := cli.Execute(); err != nil {
		os.Exit(sheetflow.ExitCodeForError(err))
	}
}
