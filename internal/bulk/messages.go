package bulk

import (
	"context"
	"strings"

	"wablast/internal/wa"
)

// SendBulk sends one message to every recipient, in batches. Each outgoing
// payload goes through the content variator, so no two sends are guaranteed
// to share an exact byte signature.
func (r *Runner) SendBulk(ctx context.Context, plan MessagePlan) (*RunResult, error) {
	bc := plan.Batch.withDefaults()
	if err := bc.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(plan.Text) == "" {
		return nil, invalid("text", "required")
	}
	if len(plan.Recipients) == 0 {
		return nil, invalid("recipients", "at least one required")
	}
	if len(plan.Recipients) > MaxUnitsPerRun {
		return nil, invalidf("recipients", "%d exceeds ceiling of %d", len(plan.Recipients), MaxUnitsPerRun)
	}

	recipients := make([]wa.JID, 0, len(plan.Recipients))
	for _, raw := range plan.Recipients {
		jid, err := wa.Normalize(raw, r.cfg.UserServer)
		if err != nil {
			return nil, invalidf("recipients", "%v", err)
		}
		recipients = append(recipients, jid)
	}

	vr := newVariator(r.rng)
	units := make([]unit, 0, len(recipients))
	for _, to := range recipients {
		to := to
		units = append(units, unit{
			target: to.String(),
			call: func(ctx context.Context) (string, error) {
				ref, err := r.session.SendText(ctx, to, vr.Apply(plan.Text))
				if err != nil {
					return "", err
				}
				return ref.ID, nil
			},
		})
	}

	return r.run(ctx, "messages", units, bc, plan.Observer)
}
