package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// execIface is the command surface runREPL drives. *App satisfies it.
type execIface interface {
	isLoggedIn() bool
	Status(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Admin(ctx context.Context) error
	NewConversation(ctx context.Context, args []string) error
	AddMessage(ctx context.Context, args []string) error
	History(ctx context.Context, args []string) error
	Trim(ctx context.Context, args []string) error
	Logout(ctx context.Context) error
}

const helpText = "Available commands: status, whoami, admin, new [title], add [role] [text], history [n], trim <n>, logout, exit"

// runREPL reads commands from reader until EOF, exit, logout or ctx ends.
// Handlers report their own errors; the loop ignores them.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, w io.Writer) {
	for ctx.Err() == nil {
		fmt.Fprintf(w, "minichat (%s)> ", statusFn())
		line, err := reader.ReadString('\n')
		parts := strings.Fields(line)
		if len(parts) == 0 {
			if err != nil {
				fmt.Fprintln(w)
				return
			}
			continue
		}

		cmd, args := parts[0], parts[1:]

		if !a.isLoggedIn() && cmd != "exit" && cmd != "quit" {
			fmt.Fprintln(w, "Not logged in.")
			return
		}

		switch cmd {
		case "help":
			fmt.Fprintln(w, helpText)
		case "status":
			_ = a.Status(ctx)
		case "whoami":
			_ = a.WhoAmI(ctx)
		case "admin":
			_ = a.Admin(ctx)
		case "new":
			_ = a.NewConversation(ctx, args)
		case "add":
			_ = a.AddMessage(ctx, args)
		case "history":
			_ = a.History(ctx, args)
		case "trim":
			_ = a.Trim(ctx, args)
		case "logout":
			_ = a.Logout(ctx)
			return
		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return
		default:
			fmt.Fprintln(w, "Unknown command:", cmd)
		}

		if err != nil {
			return
		}
	}
}
