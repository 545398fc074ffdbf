package bulk

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"wablast/internal/eventbus"
	"wablast/internal/storage"
	"wablast/internal/wa"
	"wablast/pkg/logx"
)

// Config controls the bulk runner.
type Config struct {
	// RatePerSec is the session-wide ceiling on collaborator calls,
	// enforced on top of per-unit pacing. Default 1.
	RatePerSec int
	// UserServer is the identifier suffix recipients/participants are
	// normalized to. Default wa.DefaultUserServer.
	UserServer string
	// Seed pins the random source for pacing jitter and content variation.
	// 0 derives the seed from the wall clock.
	Seed int64
}

// Runner executes bulk runs against one session, strictly sequentially:
// one collaborator call in flight at a time, one run in flight per Runner.
type Runner struct {
	cfg     Config
	session wa.Session
	log     logx.Logger
	bus     eventbus.Bus
	store   storage.Store

	limiter *rate.Limiter
	rng     *lockedRand
	running atomic.Bool

	// sleep is a suspension point honoring ctx cancellation; tests swap it.
	sleep func(ctx context.Context, d time.Duration) error
}

// New wires a runner. bus and store may be nil (no monitoring events, no
// persistence).
func New(cfg Config, session wa.Session, log logx.Logger, bus eventbus.Bus, store storage.Store) *Runner {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	if cfg.UserServer == "" {
		cfg.UserServer = wa.DefaultUserServer
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		cfg:     cfg,
		session: session,
		log:     log,
		bus:     bus,
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		rng:     newLockedRand(cfg.Seed),
		sleep:   waitFor,
	}
}

// unit is one item of bulk work, ready to execute.
type unit struct {
	target string
	call   func(ctx context.Context) (string, error)
}

// run drives the batches. Preconditions (session ready, no concurrent run)
// abort before any unit; afterwards the run always ends with a RunResult,
// complete unless cancelled or stopped by an observer error.
func (r *Runner) run(ctx context.Context, kind string, units []unit, bc BatchConfig, obs Observer) (*RunResult, error) {
	if !r.session.Ready() {
		return nil, ErrSessionNotReady
	}
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	total := len(units)
	batches := (total + bc.BatchSize - 1) / bc.BatchSize
	res := &RunResult{
		ID:        fmt.Sprintf("run:%d", time.Now().UnixNano()),
		Kind:      kind,
		Outcomes:  make([]Outcome, 0, total),
		StartedAt: time.Now(),
	}
	agg := newAggregator(res, obs, total, batches)
	pace := newPacer(bc.PerItemDelay, r.rng)
	log := r.log.With(logx.String("run", res.ID), logx.String("kind", kind))

	log.Info("bulk run started", logx.Int("total", total), logx.Int("batches", batches), logx.Int("batch_size", bc.BatchSize))
	r.publish(eventbus.TypeRunStarted, RunStarted{RunID: res.ID, Kind: kind, Total: total, Batches: batches})

	idx := 0
	for b := 0; b < batches; b++ {
		lo := b * bc.BatchSize
		hi := lo + bc.BatchSize
		if hi > total {
			hi = total
		}
		for _, u := range units[lo:hi] {
			// Pacing wait; also the cancellation point between units.
			if err := r.sleep(ctx, pace.delay(idx, idx)); err != nil {
				return r.finish(res, log), err
			}

			handle, err := r.attempt(ctx, bc, u)
			o := Outcome{Seq: idx + 1, Target: u.target}
			if err != nil {
				o.Err = err.Error()
				log.Warn("unit failed", logx.Int("seq", o.Seq), logx.String("target", u.target), logx.Err(err))
			} else {
				o.OK = true
				o.Handle = handle
			}
			idx++

			ev, obsErr := agg.record(b+1, o)
			r.publish(eventbus.TypeRunProgress, RunProgress{RunID: res.ID, ProgressEvent: ev})
			if obsErr != nil {
				r.finish(res, log)
				return res, fmt.Errorf("progress observer: %w", obsErr)
			}
		}

		if b < batches-1 {
			ev, obsErr := agg.cooldown(bc.Cooldown, b+2)
			r.publish(eventbus.TypeRunCooldown, RunCooldown{RunID: res.ID, CooldownEvent: ev})
			if obsErr != nil {
				r.finish(res, log)
				return res, fmt.Errorf("cooldown observer: %w", obsErr)
			}
			log.Debug("batch cooldown", logx.Duration("cooldown", bc.Cooldown), logx.Int("next_batch", b+2))
			if err := r.sleep(ctx, bc.Cooldown); err != nil {
				return r.finish(res, log), err
			}
		}
	}

	return r.finish(res, log), nil
}

// attempt performs one unit's collaborator call, with the session rate
// ceiling and the optional retry/timeout policy from BatchConfig.
func (r *Runner) attempt(ctx context.Context, bc BatchConfig, u unit) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	var last error
	for i := 0; i <= bc.RetryMax; i++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if bc.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, bc.CallTimeout)
		}
		handle, err := u.call(callCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return handle, nil
		}
		last = err
		if i == bc.RetryMax {
			break
		}
		delay := time.Duration(200+100*i) * time.Millisecond
		r.log.Debug("unit retry scheduled", logx.String("target", u.target), logx.Int("attempt", i+2), logx.Duration("delay", delay), logx.Err(err))
		if err := r.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", last
}

func (r *Runner) finish(res *RunResult, log logx.Logger) *RunResult {
	res.DoneAt = time.Now()
	took := res.DoneAt.Sub(res.StartedAt)

	fields := []logx.Field{
		logx.Int("sent", res.Sent),
		logx.Int("failed", res.Failed),
		logx.Duration("took", took),
	}
	if res.Failed > 0 {
		log.Warn("bulk run finished with failures", fields...)
	} else {
		log.Info("bulk run finished", fields...)
	}

	r.publish(eventbus.TypeRunFinished, RunFinished{RunID: res.ID, Kind: res.Kind, Sent: res.Sent, Failed: res.Failed, Took: took})
	r.persist(res, log)
	return res
}

func (r *Runner) persist(res *RunResult, log logx.Logger) {
	if r.store == nil {
		return
	}
	rec := storage.RunRecord{
		ID:        res.ID,
		Kind:      res.Kind,
		StartedAt: res.StartedAt,
		DoneAt:    res.DoneAt,
		Sent:      res.Sent,
		Failed:    res.Failed,
		Outcomes:  make([]storage.OutcomeRecord, 0, len(res.Outcomes)),
	}
	for _, o := range res.Outcomes {
		rec.Outcomes = append(rec.Outcomes, storage.OutcomeRecord{
			Seq: o.Seq, Target: o.Target, OK: o.OK, Handle: o.Handle, Err: o.Err,
		})
	}
	// The run ctx may already be cancelled; persistence gets its own budget.
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.SaveRun(sctx, rec); err != nil {
		log.Warn("saving run history failed", logx.Err(err))
	}
}

func (r *Runner) publish(typ string, data any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

func waitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}
