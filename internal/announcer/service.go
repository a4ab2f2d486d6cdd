package announcer

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"announcerd/internal/journal"

	logx "announcerd/pkg/logx"
)

// Service drives the reconciliation cycle on a schedule, forever.
//
// Ticks are strictly sequential: tick N+1 never starts before tick N reached
// its end state, regardless of how long a tick takes. A failing tick never
// stops the loop.
type Service struct {
	mu    sync.Mutex
	cfg   Config
	sched Schedule

	posts    PostsGateway
	accounts AccountsGateway
	mail     Broadcaster
	journal  journal.Store // may be nil
	log      logx.Logger

	// Injectable for tests; real timers otherwise.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, posts PostsGateway, accounts AccountsGateway, mail Broadcaster, jnl journal.Store, log logx.Logger) (*Service, error) {
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg,
		sched:    sched,
		posts:    posts,
		accounts: accounts,
		mail:     mail,
		journal:  jnl,
		log:      log,
		now:      time.Now,
		sleep:    sleepContext,
	}, nil
}

// Apply swaps the live config (schedule, link base). Safe to call while Run
// is looping; the new schedule takes effect after the current wait.
func (s *Service) Apply(cfg Config) error {
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.sched = sched
	s.mu.Unlock()
	return nil
}

func (s *Service) schedule() Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched
}

func (s *Service) linkBase() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.LinkBaseURL
}

// Run executes ticks until ctx is cancelled. The loop itself never returns a
// tick error; the only exit is cancellation.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("announcer started", logx.String("schedule", s.schedule().String()))
	for {
		rec := s.safeTick(ctx)
		s.record(ctx, rec)

		if err := ctx.Err(); err != nil {
			return err
		}
		wait := s.schedule().Wait(s.now())
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// safeTick wraps runTick with panic recovery and timing so one broken tick
// cannot take the loop down.
func (s *Service) safeTick(ctx context.Context) (rec journal.TickRecord) {
	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tick panicked",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
			rec.Stage = stagePanic
			rec.Error = fmt.Sprint(r)
		}
		rec.At = start
		rec.TookMS = s.now().Sub(start).Milliseconds()
	}()
	rec = s.runTick(ctx)
	return rec
}

func (s *Service) record(ctx context.Context, rec journal.TickRecord) {
	if s.journal == nil || ctx.Err() != nil {
		return
	}
	if err := s.journal.RecordTick(ctx, rec); err != nil {
		s.log.Warn("tick journal write failed", logx.Err(err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
