package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/minichat/internal/models"
	"github.com/dmitrijs2005/minichat/internal/settings"
)

var errNoConversation = errors.New("no active conversation, start one with 'new'")

func (a *App) Status(ctx context.Context) error {
	info := a.store.Info()
	fmt.Fprintf(a.out, "Backend: %s (%s)\n", info.Name, info.Type)
	if info.Connection != "" {
		fmt.Fprintf(a.out, "Connection: %s\n", info.Connection)
	}
	fmt.Fprintf(a.out, "Persistent: %t\n", info.Persistent)
	fmt.Fprintf(a.out, "Initialized: %t\n", info.Initialized)
	return nil
}

func (a *App) WhoAmI(ctx context.Context) error {
	if a.user == nil {
		fmt.Fprintln(a.out, "Not logged in.")
		return nil
	}
	fmt.Fprintf(a.out, "%s <%s> (%s)\n", a.user.Username, a.user.Email, a.user.Role)
	return nil
}

// Admin prints the backend state. Admins only.
func (a *App) Admin(ctx context.Context) error {
	if err := a.auth.RequireAdmin(ctx, a.user); err != nil {
		fmt.Fprintln(a.out, "Admin privileges required.")
		return err
	}
	st := a.store.State()
	fmt.Fprintf(a.out, "Kind: %s\nPhase: %s\nAdmin bootstrap needed: %t\n", st.Kind, st.Phase, st.AdminBootstrapNeeded)
	return nil
}

func (a *App) NewConversation(ctx context.Context, args []string) error {
	var title *string
	if t := strings.TrimSpace(strings.Join(args, " ")); t != "" {
		title = &t
	}

	c, err := a.store.CreateConversation(ctx, a.user.ID, title)
	if err != nil {
		return a.report(ctx, "create conversation", err)
	}
	a.conv = c
	fmt.Fprintf(a.out, "Conversation %d started.\n", c.ID)
	return nil
}

// AddMessage appends a message. The first argument may name the role;
// without text on the line the content is read as multiple lines.
func (a *App) AddMessage(ctx context.Context, args []string) error {
	if a.conv == nil {
		fmt.Fprintln(a.out, errNoConversation)
		return errNoConversation
	}

	role := models.MessageRoleUser
	if len(args) > 0 {
		if r, err := models.ParseMessageRole(args[0]); err == nil {
			role = r
			args = args[1:]
		}
	}

	content := strings.TrimSpace(strings.Join(args, " "))
	if content == "" {
		var err error
		content, err = GetMultiline(a.prompt.reader, "Message", a.out)
		if err != nil {
			return err
		}
	}
	if content == "" {
		fmt.Fprintln(a.out, "Empty message, nothing added.")
		return nil
	}

	m, err := a.store.AddMessage(ctx, a.conv.ID, role, content, nil)
	if err != nil {
		return a.report(ctx, "add message", err)
	}
	fmt.Fprintf(a.out, "Message %d added.\n", m.ID)
	return nil
}

// History prints the conversation, or its last n messages.
func (a *App) History(ctx context.Context, args []string) error {
	if a.conv == nil {
		fmt.Fprintln(a.out, errNoConversation)
		return errNoConversation
	}

	limit := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			fmt.Fprintln(a.out, "Usage: history [n]")
			return fmt.Errorf("bad limit %q", args[0])
		}
		limit = n
	}

	msgs, err := a.store.GetConversationMessages(ctx, a.conv.ID, limit)
	if err != nil {
		return a.report(ctx, "load history", err)
	}
	if len(msgs) == 0 {
		fmt.Fprintln(a.out, "No messages.")
	}
	for _, m := range msgs {
		fmt.Fprintf(a.out, "[%d] %s: %s\n", m.ID, m.Role, m.Content)
	}
	return nil
}

// Trim keeps only the newest n messages.
func (a *App) Trim(ctx context.Context, args []string) error {
	if a.conv == nil {
		fmt.Fprintln(a.out, errNoConversation)
		return errNoConversation
	}
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: trim <n>")
		return errors.New("missing count")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintln(a.out, "Usage: trim <n>")
		return fmt.Errorf("bad count %q", args[0])
	}

	removed, err := a.store.TruncateConversationMessages(ctx, a.conv.ID, n)
	if err != nil {
		return a.report(ctx, "trim conversation", err)
	}
	if removed {
		fmt.Fprintln(a.out, "Older messages removed.")
	} else {
		fmt.Fprintln(a.out, "Nothing to remove.")
	}
	return nil
}

// Logout revokes the session token and forgets the saved copy.
func (a *App) Logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx, a.token); err != nil {
		return a.report(ctx, "logout", err)
	}
	if a.tokens != nil {
		if err := a.tokens.Delete(settings.SessionTokenKey); err != nil {
			a.log.Warn(ctx, "removing saved token", "error", err)
		}
	}
	a.user, a.token, a.conv = nil, "", nil
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}

func (a *App) report(ctx context.Context, op string, err error) error {
	a.log.Error(ctx, op, "error", err)
	fmt.Fprintf(a.out, "Error: %v\n", err)
	return err
}
