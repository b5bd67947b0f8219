package billing

import (
	"sort"
	"strings"

	"github.com/ManuelReschke/FormFox/app/models"
	"github.com/ManuelReschke/FormFox/internal/pkg/entitlements"
)

// State is the billing lifecycle state of a school, derived from its stored fields.
type State string

const (
	StateTrial           State = "trial"
	StateActive          State = "active"
	StateScheduledCancel State = "scheduled_cancel"
	StateLocked          State = "locked"
	// StateUnmanaged covers field combinations outside the lifecycle, such as
	// a plan set by an admin without a subscription. Access follows IsActive.
	StateUnmanaged State = "unmanaged"
)

// StateOf derives the state of a school. Checks run in priority order and the
// first match wins.
func StateOf(s *models.School) State {
	switch {
	case !s.IsActive:
		return StateLocked
	case s.HasSubscription() && isActiveStatus(s.StripeSubscriptionStatus) && s.HasCancelScheduled():
		return StateScheduledCancel
	case s.HasSubscription() && isActiveStatus(s.StripeSubscriptionStatus):
		return StateActive
	case !s.HasSubscription() && entitlements.Plan(s.Plan) == entitlements.PlanTrial:
		return StateTrial
	default:
		return StateUnmanaged
	}
}

// isActiveStatus reports whether the provider still considers the
// subscription running.
func isActiveStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.SubscriptionStatusActive,
		models.SubscriptionStatusTrialing,
		models.SubscriptionStatusPastDue,
		models.SubscriptionStatusUnpaid:
		return true
	default:
		return false
	}
}

// Transition is a state change caused by a billing event.
type Transition struct {
	From State
	To   State
}

var validTransitions = map[Transition]bool{
	{StateTrial, StateActive}: true,

	{StateActive, StateScheduledCancel}: true,
	{StateActive, StateLocked}:          true,

	{StateScheduledCancel, StateActive}: true,
	{StateScheduledCancel, StateLocked}: true,

	// Re-subscription is the only way out of Locked.
	{StateLocked, StateActive}: true,

	{StateUnmanaged, StateTrial}:           true,
	{StateUnmanaged, StateActive}:          true,
	{StateUnmanaged, StateScheduledCancel}: true,
	{StateUnmanaged, StateLocked}:          true,
	{StateTrial, StateUnmanaged}:           true,
	{StateActive, StateUnmanaged}:          true,
	{StateScheduledCancel, StateUnmanaged}: true,
}

// CanTransition reports whether moving from one state to another is part of
// the billing lifecycle. Staying in the same state is always allowed.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	return validTransitions[Transition{From: from, To: to}]
}

// ValidTransitionsFrom lists the states reachable from a state, sorted.
func ValidTransitionsFrom(from State) []State {
	var out []State
	for t, ok := range validTransitions {
		if ok && t.From == from {
			out = append(out, t.To)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
