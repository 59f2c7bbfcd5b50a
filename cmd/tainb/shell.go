package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/reusee/tainb/kernels"
	"github.com/reusee/tainb/logs"
	"github.com/reusee/tainb/notebooks"
	"github.com/reusee/tainb/outputs"
	"github.com/reusee/tainb/sessions"
)

var errQuit = errors.New("quit")

// Shell runs fragments and colon commands against one kernel.
type Shell struct {
	Kernel *kernels.Kernel
	Store  *sessions.Store
	// Sync is nil when no notebook is open
	Sync    *notebooks.Sync
	Out     io.Writer
	Logger  logs.Logger
	NewSpan logs.NewSpan
}

type command struct {
	args  string
	usage string
	run   func(s *Shell, ctx context.Context, arg string) error
}

var commands = map[string]command{
	"save": {
		args:  "[NAME]",
		usage: "snapshot the bindings",
		run: func(s *Shell, ctx context.Context, arg string) error {
			path, err := s.Store.Save(s.Kernel, sessions.Target{Name: arg})
			if err != nil {
				return err
			}
			fmt.Fprintf(s.Out, "saved to %s\n", path)
			return nil
		},
	},
	"load": {
		args:  "PATH",
		usage: "merge a snapshot into the bindings",
		run: func(s *Shell, ctx context.Context, arg string) error {
			if arg == "" {
				return fmt.Errorf("snapshot path required")
			}
			info, err := s.Store.Load(s.Kernel, s.snapshotPath(arg))
			if err != nil {
				return err
			}
			s.printRestore(info)
			return nil
		},
	},
	"list": {
		usage: "list snapshots",
		run: func(s *Shell, ctx context.Context, arg string) error {
			summaries, err := s.Store.List()
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintf(s.Out, "no snapshots in %s\n", s.Store.Dir())
				return nil
			}
			for _, summary := range summaries {
				if summary.Error != nil {
					fmt.Fprintf(s.Out, "%s\tunreadable: %v\n", summary.Name, summary.Error)
					continue
				}
				fmt.Fprintf(s.Out, "%s\t%s\t%d bindings\tsequence %d\n",
					summary.Name,
					summary.SavedAt.Format("2006-01-02 15:04:05"),
					summary.Bindings,
					summary.Sequence,
				)
			}
			return nil
		},
	},
	"delete": {
		args:  "PATH",
		usage: "delete a snapshot",
		run: func(s *Shell, ctx context.Context, arg string) error {
			if arg == "" {
				return fmt.Errorf("snapshot path required")
			}
			path := s.snapshotPath(arg)
			if _, err := s.Store.Delete(path); err != nil {
				return err
			}
			fmt.Fprintf(s.Out, "deleted %s\n", path)
			return nil
		},
	},
	"vars": {
		usage: "list bindings",
		run: func(s *Shell, ctx context.Context, arg string) error {
			for _, name := range s.Kernel.UserBindings() {
				value, _ := s.Kernel.Binding(name)
				mark := ""
				if !s.Store.Restorable(s.Kernel, value) {
					mark = "\t(not saved)"
				}
				fmt.Fprintf(s.Out, "%s\t%s%s\n", name, value.Type(), mark)
			}
			return nil
		},
	},
	"reset": {
		usage: "clear bindings and history",
		run: func(s *Shell, ctx context.Context, arg string) error {
			s.Kernel.Reset()
			return nil
		},
	},
	"checkpoint": {
		args:  "FILE",
		usage: "save the checkpoint of FILE",
		run: func(s *Shell, ctx context.Context, arg string) error {
			resource, err := s.resource(arg)
			if err != nil {
				return err
			}
			path, err := s.Store.SaveCheckpoint(s.Kernel, resource)
			if err != nil {
				return err
			}
			fmt.Fprintf(s.Out, "checkpoint saved to %s\n", path)
			return nil
		},
	},
	"restore": {
		args:  "FILE",
		usage: "restore the checkpoint of FILE",
		run: func(s *Shell, ctx context.Context, arg string) error {
			resource, err := s.resource(arg)
			if err != nil {
				return err
			}
			info, err := s.Store.LoadCheckpoint(s.Kernel, resource)
			if err != nil {
				return err
			}
			if info == nil {
				fmt.Fprintf(s.Out, "no checkpoint for %s\n", resource)
				return nil
			}
			s.printRestore(info)
			return nil
		},
	},
	"cells": {
		usage: "list notebook cells",
		run: func(s *Shell, ctx context.Context, arg string) error {
			doc, err := s.document()
			if err != nil {
				return err
			}
			for i, cell := range doc.Cells {
				count := " "
				if cell.ExecutionCount != nil {
					count = strconv.Itoa(*cell.ExecutionCount)
				}
				first, _, _ := strings.Cut(cell.Source, "\n")
				fmt.Fprintf(s.Out, "%d\t%s\t[%s]\t%s\n", i, cell.Type, count, first)
			}
			return nil
		},
	},
	"run": {
		args:  "INDEX",
		usage: "run a notebook cell",
		run: func(s *Shell, ctx context.Context, arg string) error {
			doc, err := s.document()
			if err != nil {
				return err
			}
			index, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("bad cell index: %q", arg)
			}
			record, err := doc.RunCell(ctx, s.Kernel, index)
			if err != nil {
				return err
			}
			s.printRecord(record)
			return nil
		},
	},
	"write": {
		usage: "write the notebook with its session",
		run: func(s *Shell, ctx context.Context, arg string) error {
			if _, err := s.document(); err != nil {
				return err
			}
			if s.Sync.Changed() {
				fmt.Fprintf(s.Out, "overwriting external changes to %s\n", s.Sync.Path)
			}
			s.Sync.Document.EmbedSession(s.Kernel)
			if err := s.Sync.Save(); err != nil {
				return err
			}
			fmt.Fprintf(s.Out, "wrote %s\n", s.Sync.Path)
			return nil
		},
	},
	"reload": {
		usage: "re-read the notebook file",
		run: func(s *Shell, ctx context.Context, arg string) error {
			if _, err := s.document(); err != nil {
				return err
			}
			if err := s.Sync.Reload(); err != nil {
				return err
			}
			if _, err := s.Sync.Document.RestoreSession(s.Kernel); err != nil {
				return err
			}
			fmt.Fprintf(s.Out, "reloaded %s\n", s.Sync.Path)
			return nil
		},
	},
	"quit": {
		usage: "exit",
		run: func(s *Shell, ctx context.Context, arg string) error {
			return errQuit
		},
	},
}

func (s *Shell) snapshotPath(arg string) string {
	if _, err := os.Stat(arg); err == nil || strings.ContainsRune(arg, filepath.Separator) {
		return arg
	}
	return filepath.Join(s.Store.Dir(), strings.TrimSuffix(arg, ".session")+".session")
}

func (s *Shell) resource(arg string) (string, error) {
	if arg != "" {
		return arg, nil
	}
	if s.Sync != nil {
		return s.Sync.Path, nil
	}
	return "", fmt.Errorf("file required")
}

func (s *Shell) document() (*notebooks.Document, error) {
	if s.Sync == nil {
		return nil, fmt.Errorf("no notebook open")
	}
	return s.Sync.Document, nil
}

func (s *Shell) printRestore(info *sessions.RestoreInfo) {
	fmt.Fprintf(s.Out, "restored %d bindings from %s\n",
		len(info.Restored),
		info.SavedAt.Format("2006-01-02 15:04:05"),
	)
	if len(info.Skipped) > 0 {
		fmt.Fprintf(s.Out, "skipped: %s\n", strings.Join(info.Skipped, ", "))
	}
}

func (s *Shell) printRecord(record *kernels.ExecutionRecord) {
	for _, output := range record.Outputs {
		text := outputs.Format(output)
		if _, ok := output.(outputs.EvaluatedResult); ok {
			text = fmt.Sprintf("Out[%d]: %s", record.Sequence, text)
		}
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		io.WriteString(s.Out, text)
	}
}

// Handle runs one input, a colon command or a fragment.
func (s *Shell) Handle(ctx context.Context, input string) error {
	if strings.TrimSpace(input) == "" {
		return nil
	}

	if line := strings.TrimSpace(input); strings.HasPrefix(line, ":") {
		name, arg, _ := strings.Cut(line[1:], " ")
		arg = strings.TrimSpace(arg)
		if name == "help" {
			s.printHelp()
			return nil
		}
		cmd, ok := commands[name]
		if !ok {
			return fmt.Errorf("unknown command :%s, try :help", name)
		}
		return cmd.run(s, ctx, arg)
	}

	if s.Sync != nil {
		doc := s.Sync.Document
		doc.AddCell(notebooks.NewCell(notebooks.CellCode, input))
		record, err := doc.RunCell(ctx, s.Kernel, len(doc.Cells)-1)
		if err != nil {
			return err
		}
		s.printRecord(record)
		return nil
	}

	s.printRecord(s.Kernel.ExecuteContext(ctx, input))
	return nil
}

func (s *Shell) printHelp() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(s.Out, ":%s %s\t%s\n", name, cmd.args, cmd.usage)
	}
}
