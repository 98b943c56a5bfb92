package mailbox

import (
	"errors"
	"fmt"
	"strings"

	"github.com/emersion/go-imap/v2"
)

// AuthError indicates that the server rejected the configured credentials.
type AuthError struct {
	Username string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("imap auth error (%s): %s", e.Username, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsAlreadyExists reports whether err is a CREATE rejection for a mailbox
// that is already there. Servers without the ALREADYEXISTS response code
// only say so in the text.
func IsAlreadyExists(err error) bool {
	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		if imapErr.Code == imap.ResponseCodeAlreadyExists {
			return true
		}
		return strings.Contains(strings.ToLower(imapErr.Text), "already exists")
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists")
}
