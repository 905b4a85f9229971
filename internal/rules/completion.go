package rules

import (
	"fmt"
	"time"

	"questward/internal/types"
)

// CompletionFamily evaluates enumerable sub-task sets where a notification is
// due as soon as any member becomes newly eligible: finished expeditions and
// the parametric transformer coming off cooldown. When every sub-task is
// still pending the counter re-arms.
type CompletionFamily struct{}

var _ Family = (*CompletionFamily)(nil)

// Kinds returns the binary-completion rule kinds.
func (f *CompletionFamily) Kinds() []types.RuleKind {
	return []types.RuleKind{types.RuleExpeditionDone, types.RuleTransformerReady}
}

// ShouldNotify reports true while at least one sub-task is eligible.
func (f *CompletionFamily) ShouldNotify(rule *types.NotificationRule, snap *types.Snapshot, now time.Time) (bool, string) {
	switch rule.Kind {
	case types.RuleTransformerReady:
		if snap.TransformerReady() {
			return true, "The parametric transformer is ready to use."
		}
	default:
		if snap.AnyExpeditionFinished() {
			finished := 0
			for _, e := range snap.Expeditions {
				if e.Status == types.ExpeditionFinished {
					finished++
				}
			}
			return true, fmt.Sprintf("%d of %d expeditions have finished.", finished, len(snap.Expeditions))
		}
	}
	return false, ""
}

// ResetCondition re-arms the rule once no sub-task is eligible any more
// (expeditions collected and re-dispatched, transformer used).
func (f *CompletionFamily) ResetCondition(rule *types.NotificationRule, snap *types.Snapshot, now time.Time) bool {
	switch rule.Kind {
	case types.RuleTransformerReady:
		return !snap.TransformerReady()
	default:
		return !snap.AnyExpeditionFinished()
	}
}
