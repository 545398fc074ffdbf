// Package notify forwards run lifecycle events to an ops Telegram chat.
//
// The notifier is a monitoring consumer: it subscribes to the event bus,
// rate-limits itself, and drops rather than blocks. A run must never be
// slowed down (or failed) by its own progress reporting.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"wablast/internal/bulk"
	"wablast/internal/eventbus"
	"wablast/pkg/logx"
)

type Config struct {
	Token      string
	ChatID     int64
	ThreadID   int
	RatePerSec int
}

type Service struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter
	queue   chan string

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, log logx.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("notify: telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("notify: chat_id is required")
	}
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		queue:   make(chan string, 64),
	}, nil
}

// Start subscribes to the bus and begins forwarding. Idempotent.
func (s *Service) Start(ctx context.Context, bus eventbus.Bus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	events, unsub := bus.Subscribe(64)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		defer unsub()
		s.consume(runCtx, events)
	}()
	go func() {
		defer s.wg.Done()
		s.sender(runCtx)
	}()

	s.log.Info("notifier started", logx.Int64("chat_id", s.cfg.ChatID), logx.Int("rps", s.cfg.RatePerSec))
}

func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.log.Info("notifier stopped")
}

func (s *Service) consume(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			msg, throttled := formatEvent(ev)
			if msg == "" {
				continue
			}
			// Run boundaries always go out; per-unit noise is rate-capped.
			if throttled && !s.limiter.Allow() {
				continue
			}
			select {
			case s.queue <- msg:
			default:
				// never block the bus reader
			}
		}
	}
}

func (s *Service) sender(ctx context.Context) {
	to := tele.ChatID(s.cfg.ChatID)
	opt := &tele.SendOptions{ThreadID: s.cfg.ThreadID, DisableWebPagePreview: true}
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			if _, err := s.bot.Send(to, msg, opt); err != nil {
				s.log.Warn("notifier send failed", logx.Err(err))
			}
		}
	}
}

// formatEvent renders one bus event; throttled marks events that may be
// dropped under rate pressure.
func formatEvent(ev eventbus.Event) (msg string, throttled bool) {
	switch d := ev.Data.(type) {
	case bulk.RunStarted:
		return fmt.Sprintf("▶ %s %s: %d units in %d batches", d.Kind, d.RunID, d.Total, d.Batches), false
	case bulk.RunProgress:
		return fmt.Sprintf("%s %d/%d · ok %d · failed %d (batch %d/%d)",
			d.RunID, d.Index, d.Total, d.Sent, d.Failed, d.Batch, d.Batches), true
	case bulk.RunCooldown:
		return fmt.Sprintf("⏸ %s cooling down %s before batch %d/%d",
			d.RunID, d.Duration.Round(time.Second), d.NextBatch, d.Batches), true
	case bulk.RunFinished:
		mark := "✅"
		if d.Failed > 0 {
			mark = "⚠️"
		}
		return fmt.Sprintf("%s %s %s done: ok %d · failed %d · took %s",
			mark, d.Kind, d.RunID, d.Sent, d.Failed, d.Took.Round(time.Second)), false
	default:
		return "", false
	}
}
