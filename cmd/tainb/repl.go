package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/reusee/tainb/logs"
)

// isOpening reports whether line starts an indented block.
func isOpening(line string) bool {
	return strings.HasSuffix(strings.TrimRight(line, " \t"), ":") &&
		!strings.HasPrefix(strings.TrimSpace(line), ":")
}

func runREPL(shell *Shell) {
	var historyFile string
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".tainb_history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "In [1]: ",
		HistoryFile: historyFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	defer rl.Close()
	shell.Out = rl.Stdout()

	var block []string
	for {
		if len(block) > 0 {
			rl.SetPrompt("   ...: ")
		} else {
			rl.SetPrompt(fmt.Sprintf("In [%d]: ", shell.Kernel.Sequence()+1))
			if shell.Sync != nil && shell.Sync.Changed() {
				fmt.Fprintf(shell.Out, "%s changed on disk, :reload or :write\n", shell.Sync.Path)
			}
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			block = block[:0]
			continue
		}
		if err != nil { // Ctrl-D
			break
		}

		if len(block) > 0 {
			if strings.TrimSpace(line) != "" {
				block = append(block, line)
				continue
			}
			line = strings.Join(block, "\n")
			block = block[:0]
		} else if isOpening(line) {
			block = append(block, line)
			continue
		}

		if err := execute(shell, line); errors.Is(err, errQuit) {
			break
		} else if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

// execute runs one input in its own span; Ctrl-C cancels a running fragment.
func execute(shell *Shell, input string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx, _ = shell.NewSpan(ctx, "")
	err := shell.Handle(ctx, input)
	if err != nil && !errors.Is(err, errQuit) {
		shell.Logger.DebugContext(ctx, "input failed",
			"error", logs.WrapSpan(ctx, err),
		)
	}
	return err
}
