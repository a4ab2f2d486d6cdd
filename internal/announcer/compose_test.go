package announcer

import (
	"strings"
	"testing"

	"announcerd/internal/gateway"
)

func TestComposeAnnouncements(t *testing.T) {
	t.Parallel()

	recipients := []string{"a@example.com", "b@example.com"}
	posts := []gateway.Post{
		{ID: "p1", Author: "alice", Title: "First"},
		{ID: "p2", Author: "bob", Title: "Second"},
	}

	msgs, err := composeAnnouncements(recipients, posts, "https://example.com/posts/")
	if err != nil {
		t.Fatalf("composeAnnouncements: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}

	m := msgs[0]
	if m.Subject() != announceSubject {
		t.Fatalf("subject = %q", m.Subject())
	}
	if got := m.Recipients(); len(got) != 2 || got[0] != "a@example.com" || got[1] != "b@example.com" {
		t.Fatalf("recipients = %v", got)
	}
	if !strings.Contains(m.Body(), "alice has submitted a new post: First.") {
		t.Fatalf("body missing announcement line: %q", m.Body())
	}
	if !strings.Contains(m.Body(), "https://example.com/posts/p1") {
		t.Fatalf("body missing review link: %q", m.Body())
	}
	if !strings.Contains(msgs[1].Body(), "https://example.com/posts/p2") {
		t.Fatalf("second body missing review link: %q", msgs[1].Body())
	}
}

func TestComposeAnnouncementsDeterministic(t *testing.T) {
	t.Parallel()

	recipients := []string{"admin@example.com"}
	posts := []gateway.Post{{ID: "p1", Author: "alice", Title: "First"}}

	a, err := composeAnnouncements(recipients, posts, "http://x/")
	if err != nil {
		t.Fatalf("composeAnnouncements: %v", err)
	}
	b, err := composeAnnouncements(recipients, posts, "http://x/")
	if err != nil {
		t.Fatalf("composeAnnouncements: %v", err)
	}
	if !a[0].Equal(b[0]) {
		t.Fatal("same inputs produced different messages")
	}
}

func TestComposeAnnouncementsNoRecipients(t *testing.T) {
	t.Parallel()
	_, err := composeAnnouncements(nil, []gateway.Post{{ID: "p1"}}, "http://x/")
	if err == nil {
		t.Fatal("expected error for empty recipient set")
	}
}
