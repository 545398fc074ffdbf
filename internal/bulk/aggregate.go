package bulk

import "time"

// aggregator serializes outcome recording and observer emission for one run.
// Events are delivered in outcome order, one at a time.
type aggregator struct {
	res     *RunResult
	obs     Observer
	total   int
	batches int
}

func newAggregator(res *RunResult, obs Observer, total, batches int) *aggregator {
	return &aggregator{res: res, obs: obs, total: total, batches: batches}
}

// record appends the outcome, updates the counters, and emits the
// post-update progress event. The outcome is recorded before the observer
// runs, so an observer error leaves the run state valid.
func (a *aggregator) record(batch int, o Outcome) (ProgressEvent, error) {
	a.res.Outcomes = append(a.res.Outcomes, o)
	if o.OK {
		a.res.Sent++
	} else {
		a.res.Failed++
	}
	ev := ProgressEvent{
		Index:   o.Seq,
		Total:   a.total,
		Sent:    a.res.Sent,
		Failed:  a.res.Failed,
		Batch:   batch,
		Batches: a.batches,
	}
	if a.obs == nil {
		return ev, nil
	}
	return ev, a.obs.OnProgress(ev)
}

// cooldown emits the inter-batch cooldown event. nextBatch is 1-based.
func (a *aggregator) cooldown(d time.Duration, nextBatch int) (CooldownEvent, error) {
	ev := CooldownEvent{Duration: d, NextBatch: nextBatch, Batches: a.batches}
	if a.obs == nil {
		return ev, nil
	}
	return ev, a.obs.OnCooldown(ev)
}
