package entitlements

import (
	"math/rand"
	"testing"

	"github.com/ManuelReschke/FormFox/app/models"
	"github.com/stretchr/testify/assert"
)

func TestResolveOverrides(t *testing.T) {
	tests := []struct {
		name      string
		plan      Plan
		overrides Overrides
		key       string
		want      bool
	}{
		{"plan default off", PlanTrial, nil, FlagReports, false},
		{"plan default on", PlanStarter, nil, FlagReports, true},
		{"override grants", PlanStarter, Overrides{FlagMultiForm: true}, FlagMultiForm, true},
		{"override revokes", PlanGrowth, Overrides{FlagCSVExport: false}, FlagCSVExport, false},
		{"string value coerced to false", PlanGrowth, Overrides{FlagReports: "true"}, FlagReports, false},
		{"number value coerced to false", PlanGrowth, Overrides{FlagReports: 1.0}, FlagReports, false},
		{"nil value coerced to false", PlanPro, Overrides{FlagReports: nil}, FlagReports, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := Resolve(tt.plan, tt.overrides)
			assert.Equal(t, tt.want, flags[tt.key])
			assert.Len(t, flags, len(AllFlags()))
		})
	}
}

func TestResolveIgnoresUnknownKeys(t *testing.T) {
	flags := Resolve(PlanTrial, Overrides{"teleport_enabled": true})
	_, ok := flags["teleport_enabled"]
	assert.False(t, ok)
	assert.Equal(t, DefaultFlags(PlanTrial), flags)
}

func TestResolveSchool(t *testing.T) {
	school := &models.School{Plan: "starter", FeatureFlags: `{"multi_form_enabled": true}`}
	flags := ResolveSchool(school)
	assert.True(t, flags[FlagMultiForm])
	assert.True(t, flags[FlagReports])
	assert.False(t, flags[FlagCustomBranding])

	assert.Equal(t, DefaultFlags(PlanTrial), ResolveSchool(nil))
	assert.True(t, IsEnabled(school, FlagMultiForm))
}

func TestParseOverridesMalformed(t *testing.T) {
	assert.Nil(t, ParseOverrides(""))
	assert.Nil(t, ParseOverrides("   "))
	assert.Nil(t, ParseOverrides("{not json"))
	assert.Nil(t, ParseOverrides(`["reports_enabled"]`))

	school := &models.School{Plan: "pro", FeatureFlags: "{broken"}
	assert.Equal(t, DefaultFlags(PlanPro), ResolveSchool(school))
}

// Every resolved flag equals the override when one exists and the plan
// default otherwise, for random plans and override sets.
func TestResolveProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	keys := append(AllFlags(), "unknown_a", "unknown_b")
	values := []any{true, false, "yes", 0.0, nil, map[string]any{}}

	for i := 0; i < 2000; i++ {
		plan := Plans()[rng.Intn(len(Plans()))]
		overrides := Overrides{}
		for _, k := range keys {
			if rng.Intn(3) == 0 {
				overrides[k] = values[rng.Intn(len(values))]
			}
		}

		flags := Resolve(plan, overrides)
		defaults := DefaultFlags(plan)
		for _, key := range AllFlags() {
			raw, overridden := overrides[key]
			want := defaults[key]
			if overridden {
				b, isBool := raw.(bool)
				want = isBool && b
			}
			if !assert.Equalf(t, want, flags[key], "plan=%s key=%s overrides=%v", plan, key, overrides) {
				return
			}
		}
		assert.Len(t, flags, len(AllFlags()))
	}
}
