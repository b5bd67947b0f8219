package access

import (
	"math/rand"
	"testing"

	"github.com/ManuelReschke/FormFox/app/models"
	"github.com/ManuelReschke/FormFox/internal/pkg/entitlements"
	"github.com/stretchr/testify/assert"
)

var (
	staff     = Actor{UserID: 7}
	superuser = Actor{UserID: 1, IsSuperuser: true}
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		actor  Actor
		school *models.School
		flag   string
		want   Decision
	}{
		{
			name:   "trial school has no reports",
			actor:  staff,
			school: &models.School{Plan: "trial", IsActive: true},
			flag:   entitlements.FlagReports,
			want:   Decision{Reason: ReasonPlanInsufficient, Flag: entitlements.FlagReports},
		},
		{
			name:   "starter school has reports",
			actor:  staff,
			school: &models.School{Plan: "starter", IsActive: true},
			flag:   entitlements.FlagReports,
			want:   Decision{Allowed: true, Flag: entitlements.FlagReports},
		},
		{
			name:   "locked growth school",
			actor:  staff,
			school: &models.School{Plan: "growth", IsActive: false},
			flag:   entitlements.FlagStatus,
			want:   Decision{Reason: ReasonTenantLocked, Flag: entitlements.FlagStatus},
		},
		{
			name:   "locked school keeps billing",
			actor:  staff,
			school: &models.School{Plan: "trial", IsActive: false},
			flag:   BillingManagement,
			want:   Decision{Allowed: true, Flag: BillingManagement},
		},
		{
			name:   "anonymous intake on trial school",
			actor:  Actor{},
			school: &models.School{Plan: "trial", IsActive: true},
			flag:   PublicIntake,
			want:   Decision{Allowed: true, Flag: PublicIntake},
		},
		{
			name:   "anonymous intake on locked school",
			actor:  Actor{},
			school: &models.School{Plan: "growth", IsActive: false},
			flag:   PublicIntake,
			want:   Decision{Reason: ReasonTenantLocked, Flag: PublicIntake},
		},
		{
			name:   "superuser on locked school",
			actor:  superuser,
			school: &models.School{Plan: "trial", IsActive: false},
			flag:   entitlements.FlagCustomBranding,
			want:   Decision{Allowed: true, Flag: entitlements.FlagCustomBranding},
		},
		{
			name:   "override revokes plan default",
			actor:  staff,
			school: &models.School{Plan: "growth", IsActive: true, FeatureFlags: `{"csv_export_enabled": false}`},
			flag:   entitlements.FlagCSVExport,
			want:   Decision{Reason: ReasonPlanInsufficient, Flag: entitlements.FlagCSVExport},
		},
		{
			name:   "unknown flag is denied",
			actor:  staff,
			school: &models.School{Plan: "growth", IsActive: true},
			flag:   "teleport_enabled",
			want:   Decision{Reason: ReasonPlanInsufficient, Flag: "teleport_enabled"},
		},
		{
			name:  "missing school",
			actor: superuser,
			flag:  entitlements.FlagStatus,
			want:  Decision{Reason: ReasonTenantNotFound, Flag: entitlements.FlagStatus},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Check(tt.actor, tt.school, tt.flag))
		})
	}
}

func randomSchool(rng *rand.Rand) *models.School {
	plans := entitlements.Plans()
	school := &models.School{
		Plan:     string(plans[rng.Intn(len(plans))]),
		IsActive: rng.Intn(2) == 0,
	}
	switch rng.Intn(3) {
	case 0:
		school.FeatureFlags = `{"reports_enabled": true, "multi_form_enabled": true}`
	case 1:
		school.FeatureFlags = `{"status_enabled": false, "csv_export_enabled": "yes"}`
	}
	return school
}

func allGatedFlags() []string {
	return append(entitlements.AllFlags(), BillingManagement, "unknown_flag")
}

func TestSuperuserAlwaysAllowed(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		school := randomSchool(rng)
		for _, flag := range allGatedFlags() {
			assert.True(t, Allowed(superuser, school, flag), "plan=%s active=%v flag=%s", school.Plan, school.IsActive, flag)
		}
	}
}

func TestLockedSchoolDeniesEverythingButBilling(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		school := randomSchool(rng)
		school.IsActive = false
		for _, flag := range entitlements.AllFlags() {
			d := Check(staff, school, flag)
			assert.False(t, d.Allowed)
			assert.Equal(t, ReasonTenantLocked, d.Reason)
		}
		assert.True(t, Allowed(staff, school, BillingManagement))
	}
}

// Each capability boundary goes through the same flag; a starter school is
// allowed exactly the boundaries its plan covers.
func TestCapabilityBoundaries(t *testing.T) {
	starter := &models.School{Plan: "starter", IsActive: true}
	boundaries := map[string]bool{
		entitlements.FlagReports:            true,
		entitlements.FlagCSVExport:          true,
		entitlements.FlagFileUploads:        true,
		entitlements.FlagCustomBranding:     false,
		entitlements.FlagMultiForm:          false,
		entitlements.FlagCustomStatuses:     false,
		entitlements.FlagAuditLog:           true,
		entitlements.FlagEmailNotifications: true,
	}
	for flag, want := range boundaries {
		assert.Equal(t, want, Allowed(staff, starter, flag), flag)
	}
}

func TestDecisionMessage(t *testing.T) {
	assert.Contains(t, Decision{Reason: ReasonTenantLocked}.Message(), "billing page")
	assert.Contains(t, Decision{Reason: ReasonPlanInsufficient, Flag: entitlements.FlagReports}.Message(), "Starter")
	assert.Equal(t, "", Decision{Allowed: true}.Message())
}
