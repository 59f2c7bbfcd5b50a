package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/reusee/dscope"
	"github.com/reusee/tainb/cmds"
	"github.com/reusee/tainb/kernels"
	"github.com/reusee/tainb/logs"
	"github.com/reusee/tainb/modes"
	"github.com/reusee/tainb/notebooks"
	"github.com/reusee/tainb/sessions"
	"github.com/reusee/tainb/watchers"
)

var (
	notebookFlag = cmds.Var[string]("-notebook")
	restoreFlag  = cmds.Switch("-restore")
	execFlag     = cmds.Var[string]("-exec")
)

func main() {
	cmds.Execute(os.Args[1:])

	scope := dscope.New(
		new(Module),
		modes.ForProduction(),
	)

	scope.Call(func(
		logger logs.Logger,
		newSpan logs.NewSpan,
		newKernel kernels.NewKernel,
		store *sessions.Store,
		newWatcher watchers.NewWatcher,
	) {
		shell := &Shell{
			Kernel:  newKernel(),
			Store:   store,
			Out:     os.Stdout,
			Logger:  logger,
			NewSpan: newSpan,
		}

		if *execFlag != "" {
			os.Exit(runFile(shell, *execFlag))
		}

		if path := *notebookFlag; path != "" {
			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			sync, err := notebooks.Open(path, name, newWatcher(path))
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(-1)
			}
			shell.Sync = sync
			if _, err := sync.Document.RestoreSession(shell.Kernel); err != nil {
				logger.Warn("session not restored", "error", err)
			}
			if *restoreFlag {
				if err := execute(shell, ":restore"); err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
				}
			}
			sync.Start()
			defer sync.Stop()
		}

		runREPL(shell)
	})
}

// runFile executes a whole file as one fragment and returns the exit code.
func runFile(shell *Shell, path string) int {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return -1
		}
		defer f.Close()
		r = f
	}
	src, err := io.ReadAll(r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return -1
	}
	record := shell.Kernel.Execute(string(src))
	shell.printRecord(record)
	if !record.Success {
		return 1
	}
	return 0
}
