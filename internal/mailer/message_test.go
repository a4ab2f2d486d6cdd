package mailer

import (
	"errors"
	"testing"
)

func TestNewMessageDedup(t *testing.T) {
	t.Parallel()

	m, err := NewMessage(
		[]string{" a@example.com ", "b@example.com", "a@example.com", "", "b@example.com"},
		"subj", "body")
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	got := m.Recipients()
	if len(got) != 2 || got[0] != "a@example.com" || got[1] != "b@example.com" {
		t.Fatalf("recipients = %v", got)
	}
}

func TestNewMessageNoRecipients(t *testing.T) {
	t.Parallel()

	for _, in := range [][]string{nil, {}, {"", "   "}} {
		_, err := NewMessage(in, "subj", "body")
		if !errors.Is(err, ErrNoRecipients) {
			t.Fatalf("NewMessage(%v) err = %v, want ErrNoRecipients", in, err)
		}
	}
}

func TestMessageRecipientsIsCopy(t *testing.T) {
	t.Parallel()

	m, err := NewMessage([]string{"a@example.com"}, "s", "b")
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	got := m.Recipients()
	got[0] = "mutated"
	if m.Recipients()[0] != "a@example.com" {
		t.Fatal("Recipients() must return a copy")
	}
}

func TestMessageEqual(t *testing.T) {
	t.Parallel()

	a, _ := NewMessage([]string{"x@example.com"}, "s", "b")
	b, _ := NewMessage([]string{"x@example.com"}, "s", "b")
	c, _ := NewMessage([]string{"y@example.com"}, "s", "b")
	d, _ := NewMessage([]string{"x@example.com"}, "s2", "b")

	if !a.Equal(b) {
		t.Fatal("identical messages should be equal")
	}
	if a.Equal(c) || a.Equal(d) {
		t.Fatal("different messages should not be equal")
	}
}
