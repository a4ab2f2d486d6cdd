package announcer

import (
	"context"
	"sync"

	"announcerd/internal/gateway"
	"announcerd/internal/journal"
	"announcerd/internal/mailer"

	logx "announcerd/pkg/logx"
)

// Stage names recorded when a tick ends early.
const (
	stageFetchPosts  = "fetch_posts"
	stageFetchAdmins = "fetch_admins"
	stageCompose     = "compose"
	stageSend        = "send"
	stagePanic       = "panic"
)

// runTick executes one reconciliation pass:
//
//	fetch pending -> filter eligible -> fetch admins -> compose -> send -> mark
//
// Every external failure is caught here and turns into an early return; a
// tick never propagates an error to the loop. The single survivable mail
// failure is a send-kind error: some recipients may already have the mail,
// so the eligible posts are marked anyway to avoid duplicate floods. Any
// other mail error leaves the posts unmarked so the next tick retries.
func (s *Service) runTick(ctx context.Context) journal.TickRecord {
	var rec journal.TickRecord

	posts, err := s.posts.ListPending(ctx)
	if err != nil {
		s.log.Error("pending posts fetch failed",
			logx.String("kind", gateway.KindOf(err).String()),
			logx.Err(err))
		rec.Stage, rec.Error = stageFetchPosts, err.Error()
		return rec
	}
	rec.Pending = len(posts)

	eligible := filterEligible(posts)
	rec.Eligible = len(eligible)
	if len(eligible) == 0 {
		// Nothing to announce; skip the admin fetch entirely.
		s.log.Debug("no eligible posts", logx.Int("pending", len(posts)))
		return rec
	}

	accounts, err := s.accounts.ListAdmins(ctx)
	if err != nil {
		s.log.Error("admin accounts fetch failed",
			logx.String("kind", gateway.KindOf(err).String()),
			logx.Err(err))
		rec.Stage, rec.Error = stageFetchAdmins, err.Error()
		return rec
	}
	emails := gateway.AdminEmails(accounts)
	rec.Recipients = len(emails)
	if len(emails) == 0 {
		s.log.Warn("no admin recipients; skipping send",
			logx.Int("eligible", len(eligible)))
		return rec
	}

	msgs, err := composeAnnouncements(emails, eligible, s.linkBase())
	if err != nil {
		s.log.Error("compose failed", logx.Err(err))
		rec.Stage, rec.Error = stageCompose, err.Error()
		return rec
	}

	if err := s.mail.Send(ctx, msgs); err != nil {
		kind := mailer.KindOf(err)
		if kind != mailer.KindSend {
			// Assume nothing went out; safe to retry on the next tick.
			s.log.Error("mail session failed; will retry next tick",
				logx.String("kind", kind.String()),
				logx.Err(err))
			rec.Stage, rec.Error = stageSend, err.Error()
			return rec
		}
		// Messages may have partially gone out. Mark anyway: the cost is
		// possibly under-notifying once, the alternative is duplicate mail
		// every tick.
		s.log.Warn("send aborted mid-batch; marking eligible posts anyway",
			logx.Err(err))
		rec.Error = err.Error()
	} else {
		rec.Submitted = len(msgs)
	}

	rec.Marked, rec.MarkFailed = s.markAnnounced(ctx, eligible)
	return rec
}

// filterEligible keeps posts whose announcement has not been requested yet,
// preserving input order.
func filterEligible(posts []gateway.Post) []gateway.Post {
	eligible := make([]gateway.Post, 0, len(posts))
	for _, p := range posts {
		if !p.ApprovalRequested {
			eligible = append(eligible, p)
		}
	}
	return eligible
}

// markAnnounced fans out one RequestAnnouncement call per post. Calls run
// concurrently, share nothing, and are all joined before the tick ends. Each
// failure is logged individually and never aborts the others: a post whose
// flag update failed is simply re-evaluated (and re-sent) next tick.
func (s *Service) markAnnounced(ctx context.Context, posts []gateway.Post) (marked, failed int) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, p := range posts {
		wg.Add(1)
		go func(p gateway.Post) {
			defer wg.Done()
			ok, err := s.posts.RequestAnnouncement(ctx, p.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				s.log.Warn("announcement flag update failed; post will be retried next tick",
					logx.String("post_id", p.ID),
					logx.Err(err))
				return
			}
			if !ok {
				// Server-reported failure flag: logged, not branched on.
				s.log.Warn("announcement flag update reported failure",
					logx.String("post_id", p.ID))
			}
			marked++
		}(p)
	}
	wg.Wait()
	return marked, failed
}
