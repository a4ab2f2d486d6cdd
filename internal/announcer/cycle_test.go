package announcer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"announcerd/internal/gateway"
	"announcerd/internal/mailer"

	"announcerd/pkg/logx"
)

type fakePosts struct {
	mu      sync.Mutex
	pending []gateway.Post
	listErr error

	marked  []string
	markErr map[string]error
	markOK  map[string]bool

	listCalls int
}

func (f *fakePosts) ListPending(ctx context.Context) ([]gateway.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]gateway.Post(nil), f.pending...), nil
}

func (f *fakePosts) RequestAnnouncement(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.markErr[id]; err != nil {
		return false, err
	}
	f.marked = append(f.marked, id)
	if ok, set := f.markOK[id]; set {
		return ok, nil
	}
	return true, nil
}

func (f *fakePosts) markedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.marked...)
	sort.Strings(out)
	return out
}

type fakeAccounts struct {
	admins  []gateway.Account
	listErr error
	calls   int
}

func (f *fakeAccounts) ListAdmins(ctx context.Context) ([]gateway.Account, error) {
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.admins, nil
}

type fakeMail struct {
	sendErr error
	sent    [][]mailer.Message
}

func (f *fakeMail) Send(ctx context.Context, msgs []mailer.Message) error {
	f.sent = append(f.sent, msgs)
	if f.sendErr != nil {
		return f.sendErr
	}
	return nil
}

func newTestService(t *testing.T, posts *fakePosts, accounts *fakeAccounts, mail *fakeMail) *Service {
	t.Helper()
	s, err := New(Config{Schedule: "5s", LinkBaseURL: "http://x/"}, posts, accounts, mail, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestTickHappyPath(t *testing.T) {
	t.Parallel()

	posts := &fakePosts{pending: []gateway.Post{
		{ID: "p1", Author: "alice", Title: "One"},
		{ID: "p2", Author: "bob", Title: "Two", ApprovalRequested: true},
		{ID: "p3", Author: "carol", Title: "Three"},
	}}
	accounts := &fakeAccounts{admins: []gateway.Account{
		{Username: "root", Email: "root@example.com", Admin: true},
		{Username: "ops", Email: "ops@example.com", Admin: true},
	}}
	mail := &fakeMail{}

	s := newTestService(t, posts, accounts, mail)
	rec := s.runTick(context.Background())

	if rec.Pending != 3 || rec.Eligible != 2 {
		t.Fatalf("pending/eligible = %d/%d, want 3/2", rec.Pending, rec.Eligible)
	}
	if rec.Recipients != 2 || rec.Submitted != 2 {
		t.Fatalf("recipients/submitted = %d/%d, want 2/2", rec.Recipients, rec.Submitted)
	}
	if len(mail.sent) != 1 || len(mail.sent[0]) != 2 {
		t.Fatalf("mail batches = %v", mail.sent)
	}
	if got := posts.markedIDs(); len(got) != 2 || got[0] != "p1" || got[1] != "p3" {
		t.Fatalf("marked = %v, want [p1 p3]", got)
	}
	if rec.Marked != 2 || rec.MarkFailed != 0 {
		t.Fatalf("marked/failed = %d/%d", rec.Marked, rec.MarkFailed)
	}
	if rec.Stage != "" || rec.Error != "" {
		t.Fatalf("unexpected stage/error: %q/%q", rec.Stage, rec.Error)
	}
}

func TestTickNoEligibleSkipsAdminFetch(t *testing.T) {
	t.Parallel()

	posts := &fakePosts{pending: []gateway.Post{
		{ID: "p1", ApprovalRequested: true},
		{ID: "p2", ApprovalRequested: true},
	}}
	accounts := &fakeAccounts{}
	mail := &fakeMail{}

	s := newTestService(t, posts, accounts, mail)
	rec := s.runTick(context.Background())

	if rec.Pending != 2 || rec.Eligible != 0 {
		t.Fatalf("pending/eligible = %d/%d", rec.Pending, rec.Eligible)
	}
	if accounts.calls != 0 {
		t.Fatal("admin fetch should be skipped when nothing is eligible")
	}
	if len(mail.sent) != 0 {
		t.Fatal("no mail should be sent")
	}
	if len(posts.markedIDs()) != 0 {
		t.Fatal("no posts should be marked")
	}
}

func TestTickPostsFetchFailure(t *testing.T) {
	t.Parallel()

	posts := &fakePosts{listErr: &gateway.Error{Kind: gateway.KindTransport, Op: "posts.list_pending", Err: errors.New("boom")}}
	accounts := &fakeAccounts{}
	mail := &fakeMail{}

	s := newTestService(t, posts, accounts, mail)
	rec := s.runTick(context.Background())

	if rec.Stage != stageFetchPosts {
		t.Fatalf("stage = %q, want %q", rec.Stage, stageFetchPosts)
	}
	if accounts.calls != 0 || len(mail.sent) != 0 {
		t.Fatal("downstream stages should not run after a fetch failure")
	}
}

func TestTickAdminFetchFailure(t *testing.T) {
	t.Parallel()

	posts := &fakePosts{pending: []gateway.Post{{ID: "p1"}}}
	accounts := &fakeAccounts{listErr: &gateway.Error{Kind: gateway.KindInvalidResponse, Op: "accounts.list_admins", Err: errors.New("bad json")}}
	mail := &fakeMail{}

	s := newTestService(t, posts, accounts, mail)
	rec := s.runTick(context.Background())

	if rec.Stage != stageFetchAdmins {
		t.Fatalf("stage = %q, want %q", rec.Stage, stageFetchAdmins)
	}
	if len(mail.sent) != 0 || len(posts.markedIDs()) != 0 {
		t.Fatal("no mail or marking after an admin fetch failure")
	}
}

func TestTickNoRecipients(t *testing.T) {
	t.Parallel()

	posts := &fakePosts{pending: []gateway.Post{{ID: "p1"}}}
	accounts := &fakeAccounts{admins: []gateway.Account{
		{Username: "root", Email: "   "},
	}}
	mail := &fakeMail{}

	s := newTestService(t, posts, accounts, mail)
	rec := s.runTick(context.Background())

	if rec.Recipients != 0 {
		t.Fatalf("recipients = %d, want 0", rec.Recipients)
	}
	if len(mail.sent) != 0 || len(posts.markedIDs()) != 0 {
		t.Fatal("no mail or marking without recipients")
	}
}

func TestTickSessionFailureLeavesUnmarked(t *testing.T) {
	t.Parallel()

	// Everything except a send-stage failure means nothing went out; the
	// posts stay unmarked so the next tick re-sends.
	for _, kind := range []mailer.Kind{mailer.KindConnect, mailer.KindLogin, mailer.KindTimeout, mailer.KindOther} {
		posts := &fakePosts{pending: []gateway.Post{{ID: "p1"}, {ID: "p2"}}}
		accounts := &fakeAccounts{admins: []gateway.Account{{Email: "root@example.com"}}}
		mail := &fakeMail{sendErr: &mailer.Error{Kind: kind, Op: "send", Err: errors.New("down")}}

		s := newTestService(t, posts, accounts, mail)
		rec := s.runTick(context.Background())

		if rec.Stage != stageSend {
			t.Fatalf("kind %v: stage = %q, want %q", kind, rec.Stage, stageSend)
		}
		if got := posts.markedIDs(); len(got) != 0 {
			t.Fatalf("kind %v: marked = %v, want none", kind, got)
		}
	}
}

func TestTickSendFailureStillMarks(t *testing.T) {
	t.Parallel()

	posts := &fakePosts{pending: []gateway.Post{{ID: "p1"}, {ID: "p2"}}}
	accounts := &fakeAccounts{admins: []gateway.Account{{Email: "root@example.com"}}}
	mail := &fakeMail{sendErr: &mailer.Error{Kind: mailer.KindSend, Op: "send", Err: errors.New("rejected")}}

	s := newTestService(t, posts, accounts, mail)
	rec := s.runTick(context.Background())

	// A mid-batch rejection may have reached some recipients already, so all
	// eligible posts are marked to avoid duplicate mail next tick.
	if got := posts.markedIDs(); len(got) != 2 {
		t.Fatalf("marked = %v, want both posts", got)
	}
	if rec.Error == "" {
		t.Fatal("record should carry the send error")
	}
	if rec.Stage != "" {
		t.Fatalf("send-kind failure should not abort the tick, stage = %q", rec.Stage)
	}
}

func TestTickMarkFailureIsPerPost(t *testing.T) {
	t.Parallel()

	posts := &fakePosts{
		pending: []gateway.Post{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}},
		markErr: map[string]error{"p2": errors.New("conflict")},
	}
	accounts := &fakeAccounts{admins: []gateway.Account{{Email: "root@example.com"}}}
	mail := &fakeMail{}

	s := newTestService(t, posts, accounts, mail)
	rec := s.runTick(context.Background())

	if rec.Marked != 2 || rec.MarkFailed != 1 {
		t.Fatalf("marked/failed = %d/%d, want 2/1", rec.Marked, rec.MarkFailed)
	}
	if got := posts.markedIDs(); len(got) != 2 || got[0] != "p1" || got[1] != "p3" {
		t.Fatalf("marked = %v, want [p1 p3]", got)
	}
}

func TestTickServerReportedMarkFailureCounts(t *testing.T) {
	t.Parallel()

	posts := &fakePosts{
		pending: []gateway.Post{{ID: "p1"}},
		markOK:  map[string]bool{"p1": false},
	}
	accounts := &fakeAccounts{admins: []gateway.Account{{Email: "root@example.com"}}}
	mail := &fakeMail{}

	s := newTestService(t, posts, accounts, mail)
	rec := s.runTick(context.Background())

	// success:false from the server is logged but not treated as a failure.
	if rec.Marked != 1 || rec.MarkFailed != 0 {
		t.Fatalf("marked/failed = %d/%d, want 1/0", rec.Marked, rec.MarkFailed)
	}
}

func TestFilterEligiblePreservesOrder(t *testing.T) {
	t.Parallel()

	in := []gateway.Post{
		{ID: "a", ApprovalRequested: true},
		{ID: "b"},
		{ID: "c", ApprovalRequested: true},
		{ID: "d"},
		{ID: "e"},
	}
	got := filterEligible(in)
	if len(got) != 3 || got[0].ID != "b" || got[1].ID != "d" || got[2].ID != "e" {
		t.Fatalf("eligible = %v", got)
	}
}
