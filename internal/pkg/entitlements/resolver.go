package entitlements

import (
	"encoding/json"
	"strings"

	"github.com/ManuelReschke/FormFox/app/models"
)

// Overrides holds per-school flag overrides as stored by operators. Values
// are free-form; anything that is not a bool resolves to false.
type Overrides map[string]any

// ParseOverrides decodes the stored JSON override blob. Empty or malformed
// input yields no overrides.
func ParseOverrides(raw string) Overrides {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var o Overrides
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return nil
	}
	return o
}

// Resolve merges plan defaults with overrides. The result has a value for
// every catalog key; override keys outside the catalog are ignored.
func Resolve(plan Plan, overrides Overrides) Flags {
	flags := DefaultFlags(plan)
	for key, raw := range overrides {
		if !IsKnownFlag(key) {
			continue
		}
		v, ok := raw.(bool)
		flags[key] = ok && v
	}
	return flags
}

// ResolveSchool returns the effective flags for a school.
func ResolveSchool(school *models.School) Flags {
	if school == nil {
		return DefaultFlags(PlanTrial)
	}
	return Resolve(NormalizePlan(school.Plan), ParseOverrides(school.FeatureFlags))
}

// IsEnabled reports whether a single flag is on for a school.
func IsEnabled(school *models.School, key string) bool {
	return ResolveSchool(school)[key]
}
