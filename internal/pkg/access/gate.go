package access

import (
	"github.com/ManuelReschke/FormFox/app/models"
	"github.com/ManuelReschke/FormFox/internal/pkg/entitlements"
)

// BillingManagement is the pseudo flag for the billing pages. It is not part
// of the catalog and is reachable for locked schools.
const BillingManagement = "billing_management"

// PublicIntake is the pseudo flag for the public application form. Every
// plan has it; only a locked school is denied.
const PublicIntake = "public_intake"

// Reason explains a denial.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonTenantNotFound   Reason = "tenant_not_found"
	ReasonTenantLocked     Reason = "tenant_locked"
	ReasonPlanInsufficient Reason = "plan_insufficient"
)

// Actor is the caller as seen by the gate.
type Actor struct {
	UserID      uint
	IsSuperuser bool
}

// Decision is the result of Check.
type Decision struct {
	Allowed bool
	Reason  Reason
	Flag    string
}

func allow(flag string) Decision { return Decision{Allowed: true, Flag: flag} }

func deny(flag string, reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason, Flag: flag}
}

// Check decides whether actor may use the capability behind flag for school.
// Membership is checked by the caller.
func Check(actor Actor, school *models.School, flag string) Decision {
	if school == nil {
		return deny(flag, ReasonTenantNotFound)
	}
	if actor.IsSuperuser {
		return allow(flag)
	}
	if flag == BillingManagement {
		return allow(flag)
	}
	if !school.IsActive {
		return deny(flag, ReasonTenantLocked)
	}
	if flag == PublicIntake {
		return allow(flag)
	}
	if !entitlements.ResolveSchool(school)[flag] {
		return deny(flag, ReasonPlanInsufficient)
	}
	return allow(flag)
}

// Allowed is a shorthand for Check(...).Allowed.
func Allowed(actor Actor, school *models.School, flag string) bool {
	return Check(actor, school, flag).Allowed
}

// Message returns a user facing explanation of a denial.
func (d Decision) Message() string {
	switch d.Reason {
	case ReasonTenantLocked:
		return "This school's subscription has ended. A school administrator can re-subscribe on the billing page."
	case ReasonPlanInsufficient:
		if def, ok := entitlements.Definition(d.Flag); ok {
			return def.Description + " requires the " + entitlements.Label(def.MinPlan) + " plan or higher."
		}
		return "This feature is not included in the current plan."
	case ReasonTenantNotFound:
		return "School not found."
	default:
		return ""
	}
}
