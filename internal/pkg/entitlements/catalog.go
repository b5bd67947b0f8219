package entitlements

import (
	"sort"
	"strings"
)

// Plan is a subscription tier. Tiers are ordered and cumulative: every flag
// enabled by default on a tier is also enabled on all higher tiers.
type Plan string

const (
	PlanTrial   Plan = "trial"
	PlanStarter Plan = "starter"
	PlanPro     Plan = "pro"
	PlanGrowth  Plan = "growth"
)

// Feature flag keys.
const (
	FlagStatus             = "status_enabled"
	FlagCSVExport          = "csv_export_enabled"
	FlagAuditLog           = "audit_log_enabled"
	FlagReports            = "reports_enabled"
	FlagEmailNotifications = "email_notifications_enabled"
	FlagFileUploads        = "file_uploads_enabled"
	FlagCustomBranding     = "custom_branding_enabled"
	FlagMultiForm          = "multi_form_enabled"
	FlagCustomStatuses     = "custom_statuses_enabled"
)

// FlagDefinition describes a gated capability and the lowest plan that
// enables it by default.
type FlagDefinition struct {
	Key         string
	Description string
	MinPlan     Plan
}

// Flags maps flag keys to their effective value.
type Flags map[string]bool

var planRanks = map[Plan]int{
	PlanTrial:   0,
	PlanStarter: 1,
	PlanPro:     2,
	PlanGrowth:  3,
}

var planLabels = map[Plan]string{
	PlanTrial:   "Trial",
	PlanStarter: "Starter",
	PlanPro:     "Pro",
	PlanGrowth:  "Growth",
}

// Adding a flag is one entry here.
var catalog = []FlagDefinition{
	{Key: FlagStatus, Description: "Submission status column and status changes", MinPlan: PlanTrial},
	{Key: FlagCSVExport, Description: "CSV export of submissions", MinPlan: PlanTrial},
	{Key: FlagAuditLog, Description: "Admin audit log", MinPlan: PlanTrial},
	{Key: FlagReports, Description: "Submission reports", MinPlan: PlanStarter},
	{Key: FlagEmailNotifications, Description: "Email notification on new submissions", MinPlan: PlanStarter},
	{Key: FlagFileUploads, Description: "File uploads on the application form", MinPlan: PlanStarter},
	{Key: FlagCustomBranding, Description: "Custom logo and theme colors", MinPlan: PlanPro},
	{Key: FlagMultiForm, Description: "Multiple application forms", MinPlan: PlanPro},
	{Key: FlagCustomStatuses, Description: "Custom submission status values", MinPlan: PlanPro},
}

var catalogByKey = func() map[string]FlagDefinition {
	m := make(map[string]FlagDefinition, len(catalog))
	for _, def := range catalog {
		m[def.Key] = def
	}
	return m
}()

// Plans returns all tiers in ascending order.
func Plans() []Plan {
	return []Plan{PlanTrial, PlanStarter, PlanPro, PlanGrowth}
}

// AllFlags returns all known flag keys, sorted.
func AllFlags() []string {
	keys := make([]string, 0, len(catalog))
	for _, def := range catalog {
		keys = append(keys, def.Key)
	}
	sort.Strings(keys)
	return keys
}

// Definitions returns the catalog entries in declaration order.
func Definitions() []FlagDefinition {
	out := make([]FlagDefinition, len(catalog))
	copy(out, catalog)
	return out
}

// Definition looks up a single catalog entry.
func Definition(key string) (FlagDefinition, bool) {
	def, ok := catalogByKey[key]
	return def, ok
}

// IsKnownFlag reports whether key is part of the catalog.
func IsKnownFlag(key string) bool {
	_, ok := catalogByKey[key]
	return ok
}

// NormalizePlan maps free-form plan strings onto a known tier, defaulting to trial.
func NormalizePlan(plan string) Plan {
	p := Plan(strings.ToLower(strings.TrimSpace(plan)))
	if _, ok := planRanks[p]; ok {
		return p
	}
	return PlanTrial
}

// IsKnownPlan reports whether plan names a tier exactly.
func IsKnownPlan(plan string) bool {
	_, ok := planRanks[Plan(plan)]
	return ok
}

// Rank returns the position of a plan in the tier order.
func Rank(plan Plan) int {
	return planRanks[NormalizePlan(string(plan))]
}

// Label returns the display name of a plan.
func Label(plan Plan) string {
	return planLabels[NormalizePlan(string(plan))]
}

// DefaultFlags returns the plan defaults for every catalog key.
func DefaultFlags(plan Plan) Flags {
	rank := Rank(plan)
	flags := make(Flags, len(catalog))
	for _, def := range catalog {
		flags[def.Key] = rank >= planRanks[def.MinPlan]
	}
	return flags
}

// Enabled returns the keys set to true, sorted.
func (f Flags) Enabled() []string {
	out := make([]string, 0, len(f))
	for k, v := range f {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
