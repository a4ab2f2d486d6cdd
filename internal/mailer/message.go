package mailer

import (
	"errors"
	"strings"
)

// ErrNoRecipients is returned by NewMessage when the recipient set is empty.
// An empty recipient set is a contract violation, not a runtime condition.
var ErrNoRecipients = errors.New("mailer: message requires at least one recipient")

// Message is one outbound notification. Immutable once built; recipients are
// a unique set (first occurrence keeps its position).
type Message struct {
	recipients []string
	subject    string
	body       string
}

func NewMessage(recipients []string, subject, body string) (Message, error) {
	uniq := make([]string, 0, len(recipients))
	seen := make(map[string]struct{}, len(recipients))
	for _, r := range recipients {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		uniq = append(uniq, r)
	}
	if len(uniq) == 0 {
		return Message{}, ErrNoRecipients
	}
	return Message{recipients: uniq, subject: subject, body: body}, nil
}

// Recipients returns a copy of the recipient set.
func (m Message) Recipients() []string {
	out := make([]string, len(m.recipients))
	copy(out, m.recipients)
	return out
}

func (m Message) Subject() string { return m.subject }
func (m Message) Body() string    { return m.body }

// Equal reports structural equality: same recipient set, subject and body.
func (m Message) Equal(o Message) bool {
	if m.subject != o.subject || m.body != o.body {
		return false
	}
	if len(m.recipients) != len(o.recipients) {
		return false
	}
	for i := range m.recipients {
		if m.recipients[i] != o.recipients[i] {
			return false
		}
	}
	return true
}
