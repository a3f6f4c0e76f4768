package main

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"go-inkdeck/selector"
)

// runCommands reads host commands from r until quit, EOF or ctx is done.
// Errors are reported on w and do not stop the loop.
func runCommands(ctx context.Context, a *app, r io.Reader, w io.Writer) error {
	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			return err
		case line := <-lines:
			cmd, err := selector.ParseCommand(line)
			if err != nil {
				fmt.Fprintln(w, "error:", err)
				continue
			}
			quit, err := a.exec(ctx, cmd)
			if err != nil {
				fmt.Fprintf(w, "%s: %v\n", cmd.Kind, err)
				continue
			}
			if quit {
				return nil
			}
			if cmd.Kind == selector.CmdMode {
				fmt.Fprintln(w, "mode", a.sched.CurrentName())
			}
		}
	}
}
