package wire

import (
	"sort"
	"strings"
	"time"
)

// Command names with special handling in the link layer.
const (
	CmdAuth   = "AUTH"
	CmdLogout = "LOGOUT"
	CmdPing   = "PING"
)

// Command is one outgoing request. The link assigns Tag at enqueue and
// stamps Started at transmit; exactly one of Callback or OnExpire fires
// when the request is resolved.
type Command struct {
	Name string
	Args map[string]string

	Tag     string
	Started time.Time
	Retries int

	// Callback receives the matched response, or a nil response with an
	// error for failures the link cannot recover from.
	Callback func(*Response, error)
	// OnExpire is called instead of Callback when no reply arrives
	// within the link timeout.
	OnExpire func(*Command)
}

// NeedsSession true if the command must not be sent without a session key.
func (c *Command) NeedsSession() bool {
	return c.Name != CmdAuth && c.Name != CmdPing
}

// Encode serializes the command as "NAME k=v&k2=v2", appending the
// session key (except for AUTH, which carries credentials instead) and
// the correlation tag. Argument order is sorted so output is stable.
func (c *Command) Encode(session string) []byte {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte(' ')
	keys := make([]string, 0, len(c.Args))
	for k := range c.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	first := true
	for _, k := range keys {
		if !first {
			b.WriteByte('&')
		}
		first = false
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(Escape(c.Args[k]))
	}
	if session != "" && c.Name != CmdAuth {
		if !first {
			b.WriteByte('&')
		}
		first = false
		b.WriteString("s=")
		b.WriteString(session)
	}
	if c.Tag != "" {
		if !first {
			b.WriteByte('&')
		}
		b.WriteString("tag=")
		b.WriteString(c.Tag)
	}
	return []byte(b.String())
}

// Escape encodes argument content per the API rules: literal ampersands
// become entities and newlines become HTML breaks.
func Escape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "\n", "<br />")
	return s
}

// Unescape reverses the dataline encoding of a response field.
func Unescape(s string) string {
	s = strings.ReplaceAll(s, "<br />", "\n")
	s = strings.ReplaceAll(s, "`", "'")
	return s
}
