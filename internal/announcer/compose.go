package announcer

import (
	"fmt"

	"announcerd/internal/gateway"
	"announcerd/internal/mailer"
)

const announceSubject = "New post submitted - Please review"

const announceTemplate = `Hi,

%s has submitted a new post: %s.

Please review the post here: %s
`

// composeAnnouncements builds one message per post, all sharing the same
// recipient set. Pure: same inputs always yield structurally equal messages.
func composeAnnouncements(recipients []string, posts []gateway.Post, linkBase string) ([]mailer.Message, error) {
	msgs := make([]mailer.Message, 0, len(posts))
	for _, p := range posts {
		body := fmt.Sprintf(announceTemplate, p.Author, p.Title, linkBase+p.ID)
		m, err := mailer.NewMessage(recipients, announceSubject, body)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
