package campaign

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"wablast/internal/bulk"
	"wablast/pkg/logx"
)

const maxStartupSpread = 30 * time.Second

// Campaign is one named, scheduled bulk send.
type Campaign struct {
	Name     string
	Schedule string
	Plan     bulk.MessagePlan
}

// Service owns the cron runtime and dispatches campaign runs. Runs execute
// sequentially by construction: the runner rejects overlap and the service
// treats that as a skip.
type Service struct {
	log    logx.Logger
	runner *bulk.Runner

	mu      sync.Mutex
	cron    *cron.Cron
	baseCtx context.Context
	started bool
}

func New(runner *bulk.Runner, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, runner: runner, cron: cron.New()}
}

// Add registers a campaign. Must be called before Start.
func (s *Service) Add(c Campaign) error {
	spec, err := ParseSpec(c.Schedule)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job := func() { s.fire(c) }
	switch spec.Kind {
	case KindCron:
		if _, err := s.cron.AddFunc(spec.Cron, job); err != nil {
			return err
		}
	case KindInterval:
		sched, jitter := intervalScheduleWithSpread(spec.Every, time.Now(), c.Name)
		s.cron.Schedule(sched, cron.FuncJob(job))
		s.log.Debug("interval campaign spread", logx.String("campaign", c.Name), logx.Duration("jitter", jitter))
	}
	s.log.Info("campaign registered", logx.String("campaign", c.Name), logx.String("schedule", c.Schedule), logx.Int("recipients", len(c.Plan.Recipients)))
	return nil
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.baseCtx = ctx
	s.cron.Start()
	s.started = true
	s.log.Info("campaign scheduler started", logx.Int("entries", len(s.cron.Entries())))
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	stopCtx := s.cron.Stop()
	s.started = false
	// Let an in-flight fire wind down, but never hang shutdown.
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
	}
	s.log.Info("campaign scheduler stopped")
}

func (s *Service) fire(c Campaign) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	res, err := s.runner.SendBulk(ctx, c.Plan)
	switch {
	case errors.Is(err, bulk.ErrRunInProgress):
		s.log.Debug("campaign fire skipped (run in progress)", logx.String("campaign", c.Name))
	case err != nil:
		s.log.Warn("campaign run failed", logx.String("campaign", c.Name), logx.Err(err))
	default:
		s.log.Info("campaign run finished",
			logx.String("campaign", c.Name),
			logx.Int("sent", res.Sent),
			logx.Int("failed", res.Failed),
			logx.Duration("took", time.Since(start)))
	}
}

// startupSpreadSchedule wraps a base schedule and overrides the first run
// time; afterwards it delegates to the base schedule.
type startupSpreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *startupSpreadSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

var spreadSeq uint64

func intervalScheduleWithSpread(every time.Duration, now time.Time, tag string) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	spreadMax := every
	if spreadMax > maxStartupSpread {
		spreadMax = maxStartupSpread
	}
	if spreadMax <= 0 {
		return base, 0
	}

	seed := time.Now().UnixNano() ^ int64(atomic.AddUint64(&spreadSeq, 1)) ^ int64(fnv64a(tag))
	rng := rand.New(rand.NewSource(seed))
	jitter := time.Duration(rng.Int63n(int64(spreadMax)))
	return &startupSpreadSchedule{base: base, first: now.Add(every + jitter)}, jitter
}

func fnv64a(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
