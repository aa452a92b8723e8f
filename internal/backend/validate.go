package backend

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/minichat/internal/common"
	"github.com/dmitrijs2005/minichat/internal/models"
	"github.com/dmitrijs2005/minichat/internal/session"
)

// TokenParser verifies session tokens on behalf of a backend.
// *session.Issuer satisfies it.
type TokenParser interface {
	Parse(value string) (*session.Claims, error)
	TokenID(value string) (string, error)
}

// ValidateAdminUser rejects blank admin fields before any storage access.
func ValidateAdminUser(username, email, password string) error {
	switch {
	case strings.TrimSpace(username) == "":
		return fmt.Errorf("%w: username is required", common.ErrorValidation)
	case strings.TrimSpace(email) == "":
		return fmt.Errorf("%w: email is required", common.ErrorValidation)
	case password == "":
		return fmt.Errorf("%w: password is required", common.ErrorValidation)
	}
	return nil
}

func ValidateMessageRole(role models.MessageRole) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown message role %q", common.ErrorValidation, role)
	}
	return nil
}
