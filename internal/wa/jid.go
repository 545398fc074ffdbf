package wa

import (
	"fmt"
	"regexp"
	"strings"
)

var reJID = regexp.MustCompile(`^(\d+)@([a-z0-9.\-]+)$`)

// ParseJID validates a canonical identifier string ("<digits>@<server>").
// It does not normalize; use Normalize for raw user input.
func ParseJID(s string) (JID, error) {
	m := reJID.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return JID{}, fmt.Errorf("malformed identifier %q (want <digits>@<server>)", s)
	}
	return JID{User: m[1], Server: m[2]}, nil
}

// Normalize turns a raw phone-number-ish string into a user JID on the given
// server. It strips spaces, punctuation and a leading '+'; anything else
// non-numeric is an error. An already-canonical "<digits>@server" input is
// accepted as-is when the server matches.
func Normalize(raw, server string) (JID, error) {
	s := strings.TrimSpace(raw)
	if server == "" {
		server = DefaultUserServer
	}
	if strings.Contains(s, "@") {
		j, err := ParseJID(s)
		if err != nil {
			return JID{}, err
		}
		if j.Server != server {
			return JID{}, fmt.Errorf("identifier %q has server %q, want %q", raw, j.Server, server)
		}
		return j, nil
	}

	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return JID{}, fmt.Errorf("malformed number %q", raw)
		}
	}
	if b.Len() == 0 {
		return JID{}, fmt.Errorf("empty number %q", raw)
	}
	return JID{User: b.String(), Server: server}, nil
}
