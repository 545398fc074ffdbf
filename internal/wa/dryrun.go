package wa

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"wablast/pkg/logx"
)

// DryRun is a Session that accepts every call without touching the network.
// It stands in for the production client in local runs and demos.
type DryRun struct {
	log logx.Logger
	seq atomic.Uint64
}

func NewDryRun(log logx.Logger) *DryRun {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &DryRun{log: log}
}

func (d *DryRun) Ready() bool { return true }

func (d *DryRun) CreateGroup(ctx context.Context, name string, participants []JID, opt *CreateOptions) (GroupHandle, error) {
	if err := ctx.Err(); err != nil {
		return GroupHandle{}, err
	}
	n := d.seq.Add(1)
	h := GroupHandle{
		JID:  JID{User: fmt.Sprintf("%d%04d", time.Now().Unix(), n), Server: GroupServer},
		Name: name,
	}
	d.log.Info("dry-run: group created", logx.String("name", name), logx.Int("participants", len(participants)), logx.String("jid", h.JID.String()))
	return h, nil
}

func (d *DryRun) SendText(ctx context.Context, to JID, text string) (MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return MessageRef{}, err
	}
	n := d.seq.Add(1)
	d.log.Info("dry-run: message sent", logx.String("to", to.String()), logx.Int("len", len(text)))
	return MessageRef{ID: fmt.Sprintf("dry:%d", n), To: to, Timestamp: time.Now()}, nil
}
