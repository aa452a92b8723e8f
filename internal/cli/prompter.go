package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/minichat/internal/auth"
)

// Prompter asks the user for credentials and confirmations. It satisfies
// auth.CredentialSource and backendmanager.Confirmer.
type Prompter struct {
	reader *bufio.Reader
	out    io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{reader: bufio.NewReader(in), out: out}
}

func (p *Prompter) Credentials(ctx context.Context) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	username, err := GetSimpleText(p.reader, "Username", p.out)
	if err != nil {
		return "", "", cancelled(err)
	}
	password, err := GetPassword(p.reader, "Password", p.out)
	if err != nil {
		return "", "", cancelled(err)
	}
	return username, password, nil
}

func (p *Prompter) AttemptFailed(ctx context.Context, err error, remaining int) {
	switch {
	case errors.Is(err, auth.ErrEmptyField):
		fmt.Fprintln(p.out, "Username and password cannot be empty.")
	case errors.Is(err, auth.ErrInvalidCredentials):
		fmt.Fprintln(p.out, "Invalid credentials.")
	default:
		fmt.Fprintln(p.out, "Login failed, please try again.")
	}
	if remaining > 0 {
		fmt.Fprintf(p.out, "%d attempts remaining.\n", remaining)
	}
}

func (p *Prompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return Confirm(p.reader, prompt, p.out)
}

// AdminRequest collects the fields for the first admin account.
func (p *Prompter) AdminRequest(ctx context.Context) (auth.AdminRequest, error) {
	var req auth.AdminRequest
	if err := ctx.Err(); err != nil {
		return req, err
	}

	var err error
	if req.Username, err = GetSimpleText(p.reader, "Admin username", p.out); err != nil {
		return req, cancelled(err)
	}
	if req.Email, err = GetSimpleText(p.reader, "Admin email", p.out); err != nil {
		return req, cancelled(err)
	}
	if req.Password, err = GetPassword(p.reader, "Admin password", p.out); err != nil {
		return req, cancelled(err)
	}
	if req.ConfirmPassword, err = GetPassword(p.reader, "Confirm password", p.out); err != nil {
		return req, cancelled(err)
	}
	return req, nil
}

// cancelled turns end of input into auth.ErrPromptCancelled.
func cancelled(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", auth.ErrPromptCancelled, err)
	}
	return err
}
