package bulk

import (
	"context"
	"fmt"
	"strings"

	"wablast/internal/wa"
)

// CreateGroups creates plan.Count groups named "<NamePrefix> <n>" with the
// same participant set, in batches. Pacing is adaptive unless
// plan.Batch.PerItemDelay is set.
func (r *Runner) CreateGroups(ctx context.Context, plan GroupPlan) (*RunResult, error) {
	bc := plan.Batch.withDefaults()
	if err := bc.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(plan.NamePrefix) == "" {
		return nil, invalid("name_prefix", "required")
	}
	if plan.Count < 1 {
		return nil, invalid("count", "must be >= 1")
	}
	if plan.Count > MaxUnitsPerRun {
		return nil, invalidf("count", "exceeds ceiling of %d", MaxUnitsPerRun)
	}
	if len(plan.Participants) == 0 {
		return nil, invalid("participants", "at least one required")
	}
	if len(plan.Participants) > MaxGroupParticipants {
		return nil, invalidf("participants", "%d exceeds platform ceiling of %d", len(plan.Participants), MaxGroupParticipants)
	}

	participants := make([]wa.JID, 0, len(plan.Participants))
	for _, raw := range plan.Participants {
		jid, err := wa.Normalize(raw, r.cfg.UserServer)
		if err != nil {
			return nil, invalidf("participants", "%v", err)
		}
		participants = append(participants, jid)
	}

	units := make([]unit, 0, plan.Count)
	for i := 0; i < plan.Count; i++ {
		name := groupName(plan.NamePrefix, bc.StartIndex+i, bc.PadNumbers)
		units = append(units, unit{
			target: name,
			call: func(ctx context.Context) (string, error) {
				h, err := r.session.CreateGroup(ctx, name, participants, plan.Options)
				if err != nil {
					return "", err
				}
				return h.JID.String(), nil
			},
		})
	}

	return r.run(ctx, "groups", units, bc, plan.Observer)
}

func groupName(prefix string, n int, pad bool) string {
	if pad {
		return fmt.Sprintf("%s %03d", prefix, n)
	}
	return fmt.Sprintf("%s %d", prefix, n)
}
