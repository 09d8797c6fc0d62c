// Package escalate wraps a remote command line so it executes with
// elevated privileges. The transport applies the wrapping just before
// execution; failure to elevate is an EscalationError, kept distinct from
// the wrapped command failing on its own.
package escalate

import (
	"fmt"
	"strings"

	"github.com/vsantiago113/AnsibleCraft/pkg/errs"
)

// Config selects the escalation method and target user for one session.
type Config struct {
	Method   string // sudo (default) | su
	User     string // target user, root when empty
	Password string
}

// Wrap returns the elevated form of cmd.
func (c Config) Wrap(cmd string) (string, error) {
	method := c.Method
	if method == "" {
		method = "sudo"
	}
	switch method {
	case "sudo":
		userFlag := ""
		if c.User != "" && c.User != "root" {
			userFlag = fmt.Sprintf("-u %q ", c.User)
		}
		if c.Password == "" {
			// -n: never prompt; a password requirement shows up as a
			// denial on stderr and becomes an EscalationError.
			return fmt.Sprintf("sudo -n %s-H bash -c %q", userFlag, cmd), nil
		}
		return fmt.Sprintf("printf '%%s\\n' %q | sudo -S -p '' %s-H bash -c %q", c.Password, userFlag, cmd), nil
	case "su":
		if c.Password == "" {
			return "", &errs.EscalationError{Method: "su", Reason: "password required but not provided"}
		}
		user := c.User
		if user == "" {
			user = "root"
		}
		return fmt.Sprintf("printf '%%s\\n' %q | su %q -c %q", c.Password, user, cmd), nil
	default:
		return "", &errs.EscalationError{Method: method, Reason: "unsupported escalation method"}
	}
}

// Denial markers sudo/su print when elevation itself fails.
var denials = []string{
	"a password is required",
	"incorrect password attempt",
	"Sorry, try again",
	"Authentication failure",
	"is not in the sudoers file",
	"not allowed to execute",
}

// Denied inspects a completed command for evidence that elevation was
// refused, as opposed to the wrapped command failing.
func Denied(stderr string, exit int) bool {
	if exit == 0 {
		return false
	}
	for _, marker := range denials {
		if strings.Contains(stderr, marker) {
			return true
		}
	}
	return false
}
