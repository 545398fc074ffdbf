package bulk

import (
	"time"

	"wablast/internal/wa"
)

// Platform ceilings enforced before any batch starts.
const (
	MaxGroupParticipants = 256
	MaxUnitsPerRun       = 1024
)

// BatchConfig controls batching, pacing and per-call hardening for one run.
// It is validated once at entry and immutable afterwards.
type BatchConfig struct {
	BatchSize    int
	Cooldown     time.Duration // pause between batches
	PerItemDelay time.Duration // fixed pacing; 0 selects adaptive pacing
	StartIndex   int           // first group number; defaults to 1
	PadNumbers   bool          // zero-pad group numbers to 3 digits

	RetryMax    int           // extra attempts per unit; 0 = no retry
	CallTimeout time.Duration // per collaborator call; 0 = no timeout
}

func (c BatchConfig) withDefaults() BatchConfig {
	if c.StartIndex <= 0 {
		c.StartIndex = 1
	}
	return c
}

func (c BatchConfig) validate() error {
	if c.BatchSize <= 0 {
		return invalid("batch_size", "must be > 0")
	}
	if c.Cooldown < 0 {
		return invalid("batch_cooldown", "must be >= 0")
	}
	if c.PerItemDelay < 0 {
		return invalid("per_item_delay", "must be >= 0")
	}
	if c.RetryMax < 0 {
		return invalid("retry_max", "must be >= 0")
	}
	if c.CallTimeout < 0 {
		return invalid("call_timeout", "must be >= 0")
	}
	return nil
}

// GroupPlan describes a bulk group-creation run. Groups are named
// "<NamePrefix> <n>" with n counting up from Batch.StartIndex.
type GroupPlan struct {
	NamePrefix   string
	Count        int
	Participants []string // raw numbers or canonical identifiers
	Options      *wa.CreateOptions
	Batch        BatchConfig
	Observer     Observer
}

// MessagePlan describes a bulk message-send run.
type MessagePlan struct {
	Text       string
	Recipients []string // raw numbers or canonical identifiers
	Batch      BatchConfig
	Observer   Observer
}

// Outcome is the immutable per-unit result entry. Seq is 1-based and
// gapless in submission order.
type Outcome struct {
	Seq    int    `json:"seq"`
	Target string `json:"target"` // group name or recipient identifier
	OK     bool   `json:"ok"`
	Handle string `json:"handle,omitempty"` // group JID or message id
	Err    string `json:"err,omitempty"`
}

// RunResult is the final accounting of a run. For every completed run
// Sent+Failed equals the unit count; a cancelled run carries the outcomes
// recorded up to the cancellation point.
type RunResult struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // "groups" | "messages"
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Outcomes  []Outcome `json:"outcomes"`
	StartedAt time.Time `json:"started_at"`
	DoneAt    time.Time `json:"done_at"`
}

// ProgressEvent reflects the post-update counters after one outcome.
// Index and Batch are 1-based.
type ProgressEvent struct {
	Index   int `json:"index"`
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Batch   int `json:"batch"`
	Batches int `json:"batches"`
}

// CooldownEvent is emitted before the inter-batch pause starts.
// NextBatch is 1-based.
type CooldownEvent struct {
	Duration  time.Duration `json:"duration"`
	NextBatch int           `json:"next_batch"`
	Batches   int           `json:"batches"`
}

// Observer receives run events synchronously, in outcome order, never
// reordered or batched. A non-nil error stops the run after the current
// outcome has been recorded and is returned to the caller; recorded
// outcomes stay valid.
type Observer interface {
	OnProgress(ProgressEvent) error
	OnCooldown(CooldownEvent) error
}

// ObserverFuncs adapts plain functions to Observer. Nil funcs are ignored.
type ObserverFuncs struct {
	Progress func(ProgressEvent) error
	Cooldown func(CooldownEvent) error
}

func (o ObserverFuncs) OnProgress(e ProgressEvent) error {
	if o.Progress == nil {
		return nil
	}
	return o.Progress(e)
}

func (o ObserverFuncs) OnCooldown(e CooldownEvent) error {
	if o.Cooldown == nil {
		return nil
	}
	return o.Cooldown(e)
}

// Event bus payloads (see internal/eventbus for the type constants).

type RunStarted struct {
	RunID   string `json:"run_id"`
	Kind    string `json:"kind"`
	Total   int    `json:"total"`
	Batches int    `json:"batches"`
}

type RunProgress struct {
	RunID string `json:"run_id"`
	ProgressEvent
}

type RunCooldown struct {
	RunID string `json:"run_id"`
	CooldownEvent
}

type RunFinished struct {
	RunID  string        `json:"run_id"`
	Kind   string        `json:"kind"`
	Sent   int           `json:"sent"`
	Failed int           `json:"failed"`
	Took   time.Duration `json:"took"`
}
