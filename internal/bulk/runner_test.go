package bulk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"wablast/internal/wa"
	"wablast/pkg/logx"
)

// fakeSession records collaborator calls and fails on demand.
type fakeSession struct {
	mu       sync.Mutex
	notReady bool

	groups []string // created group names
	sends  []string // recipient identifiers
	texts  []string // payloads as received

	failWith  map[string]error // permanent failure per target
	failFirst map[string]int   // fail the first N attempts per target
	attempts  map[string]int

	block   chan struct{} // when set, the first send blocks until closed
	blocked sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		failWith:  map[string]error{},
		failFirst: map[string]int{},
		attempts:  map[string]int{},
	}
}

func (f *fakeSession) Ready() bool { return !f.notReady }

func (f *fakeSession) fail(target string) error {
	f.attempts[target]++
	if err, ok := f.failWith[target]; ok {
		return err
	}
	if n := f.failFirst[target]; n > 0 && f.attempts[target] <= n {
		return fmt.Errorf("transient failure %d for %s", f.attempts[target], target)
	}
	return nil
}

func (f *fakeSession) CreateGroup(ctx context.Context, name string, participants []wa.JID, _ *wa.CreateOptions) (wa.GroupHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(name); err != nil {
		return wa.GroupHandle{}, err
	}
	f.groups = append(f.groups, name)
	return wa.GroupHandle{JID: wa.JID{User: fmt.Sprintf("%d", len(f.groups)), Server: wa.GroupServer}, Name: name}, nil
}

func (f *fakeSession) SendText(ctx context.Context, to wa.JID, text string) (wa.MessageRef, error) {
	if f.block != nil {
		f.blocked.Do(func() { <-f.block })
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(to.String()); err != nil {
		return wa.MessageRef{}, err
	}
	f.sends = append(f.sends, to.String())
	f.texts = append(f.texts, text)
	return wa.MessageRef{ID: fmt.Sprintf("m%d", len(f.sends)), To: to}, nil
}

// newTestRunner returns a runner whose waits complete instantly but are
// recorded, so tests can assert pacing without real sleeps.
func newTestRunner(t *testing.T, fs *fakeSession) (*Runner, *[]time.Duration) {
	t.Helper()
	r := New(Config{RatePerSec: 10000, Seed: 1}, fs, logx.Nop(), nil, nil)
	var delays []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		delays = append(delays, d)
		return nil
	}
	return r, &delays
}

func recipients(n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("62811%04d", i))
	}
	return out
}

// progressRecorder collects events and can inject observer errors.
type progressRecorder struct {
	progress  []ProgressEvent
	cooldowns []CooldownEvent
	failAfter int // return an error once this many progress events arrived
	onEvent   func(int)
}

func (p *progressRecorder) OnProgress(e ProgressEvent) error {
	p.progress = append(p.progress, e)
	if p.onEvent != nil {
		p.onEvent(len(p.progress))
	}
	if p.failAfter > 0 && len(p.progress) >= p.failAfter {
		return errors.New("observer exploded")
	}
	return nil
}

func (p *progressRecorder) OnCooldown(e CooldownEvent) error {
	p.cooldowns = append(p.cooldowns, e)
	return nil
}

func checkGapless(t *testing.T, outcomes []Outcome) {
	t.Helper()
	for i, o := range outcomes {
		if o.Seq != i+1 {
			t.Fatalf("outcome %d has seq %d, want %d", i, o.Seq, i+1)
		}
	}
}

func TestSendBulkSingleBatch(t *testing.T) {
	t.Parallel()
	fs := newFakeSession()
	r, delays := newTestRunner(t, fs)
	rec := &progressRecorder{}

	res, err := r.SendBulk(context.Background(), MessagePlan{
		Text:       "hello there",
		Recipients: recipients(5),
		Batch:      BatchConfig{BatchSize: 10, Cooldown: time.Minute, PerItemDelay: 2 * time.Second},
		Observer:   rec,
	})
	if err != nil {
		t.Fatalf("SendBulk: %v", err)
	}
	if res.Sent != 5 || res.Failed != 0 {
		t.Fatalf("counters = %d/%d, want 5/0", res.Sent, res.Failed)
	}
	if len(res.Outcomes) != 5 {
		t.Fatalf("outcome log has %d entries, want 5", len(res.Outcomes))
	}
	checkGapless(t, res.Outcomes)
	if len(rec.cooldowns) != 0 {
		t.Fatalf("single batch emitted %d cooldown events, want 0", len(rec.cooldowns))
	}
	if len(rec.progress) != 5 {
		t.Fatalf("got %d progress events, want 5", len(rec.progress))
	}
	for i, e := range rec.progress {
		if e.Index != i+1 || e.Total != 5 || e.Batch != 1 || e.Batches != 1 {
			t.Fatalf("progress %d = %+v", i, e)
		}
		if e.Sent+e.Failed != e.Index {
			t.Fatalf("progress %d counters not post-update: %+v", i, e)
		}
	}

	// First unit never waits; the rest carry fixed delay + jitter.
	if (*delays)[0] != 0 {
		t.Fatalf("first pacing delay = %v, want 0", (*delays)[0])
	}
	for _, d := range (*delays)[1:] {
		if d < 2*time.Second+fixedJitterMin || d >= 2*time.Second+fixedJitterMax {
			t.Fatalf("paced delay %v outside fixed+jitter range", d)
		}
	}

	// Every delivered payload is a recognizable variant of the original.
	for _, text := range fs.texts {
		if StripVariation(text) != "hello there" {
			t.Fatalf("payload %q does not strip back to original", text)
		}
	}
}

func TestSendBulkBatchesAndCooldowns(t *testing.T) {
	t.Parallel()
	fs := newFakeSession()
	r, _ := newTestRunner(t, fs)
	rec := &progressRecorder{}

	res, err := r.SendBulk(context.Background(), MessagePlan{
		Text:       "batch test",
		Recipients: recipients(25),
		Batch:      BatchConfig{BatchSize: 10, Cooldown: 30 * time.Second, PerItemDelay: time.Second},
		Observer:   rec,
	})
	if err != nil {
		t.Fatalf("SendBulk: %v", err)
	}
	if res.Sent+res.Failed != 25 {
		t.Fatalf("accounting = %d, want 25", res.Sent+res.Failed)
	}
	checkGapless(t, res.Outcomes)

	if len(rec.cooldowns) != 2 {
		t.Fatalf("got %d cooldown events, want 2", len(rec.cooldowns))
	}
	for i, c := range rec.cooldowns {
		if c.NextBatch != i+2 || c.Batches != 3 || c.Duration != 30*time.Second {
			t.Fatalf("cooldown %d = %+v", i, c)
		}
	}

	// Batch sizes 10/10/5 via the progress events.
	perBatch := map[int]int{}
	for _, e := range rec.progress {
		perBatch[e.Batch]++
	}
	if perBatch[1] != 10 || perBatch[2] != 10 || perBatch[3] != 5 {
		t.Fatalf("per-batch unit counts = %v, want [10 10 5]", perBatch)
	}
}

func TestUnitFailureDoesNotAbortRun(t *testing.T) {
	t.Parallel()
	fs := newFakeSession()
	fs.failWith["628110002@s.whatsapp.net"] = errors.New("duplicate participant")
	r, _ := newTestRunner(t, fs)

	res, err := r.SendBulk(context.Background(), MessagePlan{
		Text:       "partial failure",
		Recipients: recipients(5),
		Batch:      BatchConfig{BatchSize: 10},
	})
	if err != nil {
		t.Fatalf("SendBulk: %v", err)
	}
	if res.Sent != 4 || res.Failed != 1 {
		t.Fatalf("counters = %d/%d, want 4/1", res.Sent, res.Failed)
	}
	var failed *Outcome
	for i := range res.Outcomes {
		if !res.Outcomes[i].OK {
			failed = &res.Outcomes[i]
		}
	}
	if failed == nil {
		t.Fatal("no failed outcome recorded")
	}
	if failed.Seq != 3 || !strings.Contains(failed.Err, "duplicate participant") {
		t.Fatalf("failed outcome = %+v", failed)
	}
}

func TestValidationRejectsBeforeAnyUnit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		plan MessagePlan
	}{
		{name: "malformed recipient", plan: MessagePlan{Text: "x", Recipients: []string{"abc"}, Batch: BatchConfig{BatchSize: 5}}},
		{name: "empty recipients", plan: MessagePlan{Text: "x", Batch: BatchConfig{BatchSize: 5}}},
		{name: "empty text", plan: MessagePlan{Recipients: recipients(1), Batch: BatchConfig{BatchSize: 5}}},
		{name: "zero batch size", plan: MessagePlan{Text: "x", Recipients: recipients(1)}},
		{name: "too many recipients", plan: MessagePlan{Text: "x", Recipients: recipients(MaxUnitsPerRun + 1), Batch: BatchConfig{BatchSize: 5}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeSession()
			r, _ := newTestRunner(t, fs)
			res, err := r.SendBulk(context.Background(), tt.plan)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if res != nil {
				t.Fatalf("got result %+v for rejected run", res)
			}
			if len(fs.sends) != 0 {
				t.Fatalf("%d units attempted on rejected run", len(fs.sends))
			}
		})
	}
}

func TestGroupPlanValidation(t *testing.T) {
	t.Parallel()
	many := make([]string, MaxGroupParticipants+1)
	for i := range many {
		many[i] = fmt.Sprintf("62811%05d", i)
	}
	tests := []struct {
		name string
		plan GroupPlan
	}{
		{name: "empty prefix", plan: GroupPlan{Count: 1, Participants: recipients(2), Batch: BatchConfig{BatchSize: 5}}},
		{name: "zero count", plan: GroupPlan{NamePrefix: "G", Participants: recipients(2), Batch: BatchConfig{BatchSize: 5}}},
		{name: "no participants", plan: GroupPlan{NamePrefix: "G", Count: 1, Batch: BatchConfig{BatchSize: 5}}},
		{name: "participants over ceiling", plan: GroupPlan{NamePrefix: "G", Count: 1, Participants: many, Batch: BatchConfig{BatchSize: 5}}},
		{name: "malformed participant", plan: GroupPlan{NamePrefix: "G", Count: 1, Participants: []string{"abc"}, Batch: BatchConfig{BatchSize: 5}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeSession()
			r, _ := newTestRunner(t, fs)
			_, err := r.CreateGroups(context.Background(), tt.plan)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if len(fs.groups) != 0 {
				t.Fatalf("%d groups created on rejected run", len(fs.groups))
			}
		})
	}
}

func TestCreateGroupsNamesAndPadding(t *testing.T) {
	t.Parallel()
	fs := newFakeSession()
	r, delays := newTestRunner(t, fs)

	res, err := r.CreateGroups(context.Background(), GroupPlan{
		NamePrefix:   "Promo",
		Count:        3,
		Participants: recipients(2),
		Batch:        BatchConfig{BatchSize: 10, StartIndex: 7, PadNumbers: true},
	})
	if err != nil {
		t.Fatalf("CreateGroups: %v", err)
	}
	want := []string{"Promo 007", "Promo 008", "Promo 009"}
	if len(fs.groups) != len(want) {
		t.Fatalf("created %d groups, want %d", len(fs.groups), len(want))
	}
	for i, name := range want {
		if fs.groups[i] != name {
			t.Fatalf("group %d named %q, want %q", i, fs.groups[i], name)
		}
		if res.Outcomes[i].Target != name || res.Outcomes[i].Handle == "" {
			t.Fatalf("outcome %d = %+v", i, res.Outcomes[i])
		}
	}

	// No fixed delay: the adaptive path paces units after the first.
	if (*delays)[0] != 0 {
		t.Fatalf("first delay = %v, want 0", (*delays)[0])
	}
	for _, d := range (*delays)[1:] {
		if d < time.Second || d >= 3*time.Second {
			t.Fatalf("adaptive delay %v outside [1s, 3s)", d)
		}
	}
}

func TestSessionNotReady(t *testing.T) {
	t.Parallel()
	fs := newFakeSession()
	fs.notReady = true
	r, _ := newTestRunner(t, fs)
	_, err := r.SendBulk(context.Background(), MessagePlan{
		Text: "x", Recipients: recipients(1), Batch: BatchConfig{BatchSize: 1},
	})
	if !errors.Is(err, ErrSessionNotReady) {
		t.Fatalf("err = %v, want ErrSessionNotReady", err)
	}
}

func TestConcurrentRunRejected(t *testing.T) {
	t.Parallel()
	fs := newFakeSession()
	fs.block = make(chan struct{})
	r, _ := newTestRunner(t, fs)

	done := make(chan error, 1)
	go func() {
		_, err := r.SendBulk(context.Background(), MessagePlan{
			Text: "first", Recipients: recipients(1), Batch: BatchConfig{BatchSize: 1},
		})
		done <- err
	}()

	// Wait until the first run holds the session.
	deadline := time.After(2 * time.Second)
	for !r.running.Load() {
		select {
		case <-deadline:
			t.Fatal("first run never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	_, err := r.SendBulk(context.Background(), MessagePlan{
		Text: "second", Recipients: recipients(1), Batch: BatchConfig{BatchSize: 1},
	})
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("err = %v, want ErrRunInProgress", err)
	}

	close(fs.block)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
}

func TestObserverErrorStopsRunKeepsState(t *testing.T) {
	t.Parallel()
	fs := newFakeSession()
	r, _ := newTestRunner(t, fs)
	rec := &progressRecorder{failAfter: 2}

	res, err := r.SendBulk(context.Background(), MessagePlan{
		Text: "boom", Recipients: recipients(5), Batch: BatchConfig{BatchSize: 10}, Observer: rec,
	})
	if err == nil || !strings.Contains(err.Error(), "observer exploded") {
		t.Fatalf("err = %v, want observer error", err)
	}
	if res == nil {
		t.Fatal("partial result missing")
	}
	if len(res.Outcomes) != 2 {
		t.Fatalf("recorded %d outcomes, want 2", len(res.Outcomes))
	}
	checkGapless(t, res.Outcomes)
	if res.Sent != 2 {
		t.Fatalf("sent = %d, want 2", res.Sent)
	}
}

func TestCancellationBetweenUnits(t *testing.T) {
	t.Parallel()
	fs := newFakeSession()
	r, _ := newTestRunner(t, fs)

	ctx, cancel := context.WithCancel(context.Background())
	rec := &progressRecorder{onEvent: func(n int) {
		if n == 2 {
			cancel()
		}
	}}

	res, err := r.SendBulk(ctx, MessagePlan{
		Text: "cancel me", Recipients: recipients(5), Batch: BatchConfig{BatchSize: 10}, Observer: rec,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res == nil || len(res.Outcomes) != 2 {
		t.Fatalf("recorded outcomes not preserved: %+v", res)
	}
	if len(fs.sends) != 2 {
		t.Fatalf("%d units attempted after cancel, want 2", len(fs.sends))
	}
}

func TestRetryRecordsSingleOutcome(t *testing.T) {
	t.Parallel()
	fs := newFakeSession()
	fs.failFirst["628110000@s.whatsapp.net"] = 2
	r, _ := newTestRunner(t, fs)

	res, err := r.SendBulk(context.Background(), MessagePlan{
		Text: "retry", Recipients: recipients(1), Batch: BatchConfig{BatchSize: 1, RetryMax: 2},
	})
	if err != nil {
		t.Fatalf("SendBulk: %v", err)
	}
	if res.Sent != 1 || res.Failed != 0 || len(res.Outcomes) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if got := fs.attempts["628110000@s.whatsapp.net"]; got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	t.Parallel()
	fs := newFakeSession()
	fs.failWith["628110000@s.whatsapp.net"] = errors.New("server says no")
	r, _ := newTestRunner(t, fs)

	res, err := r.SendBulk(context.Background(), MessagePlan{
		Text: "retry", Recipients: recipients(1), Batch: BatchConfig{BatchSize: 1, RetryMax: 1},
	})
	if err != nil {
		t.Fatalf("SendBulk: %v", err)
	}
	if res.Failed != 1 || len(res.Outcomes) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if got := fs.attempts["628110000@s.whatsapp.net"]; got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
}
