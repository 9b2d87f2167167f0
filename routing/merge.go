package routing

import "modelrules/models"

// Merge computes the parameter overlay for a resolved request: provider-level
// rules first, then the model-specific entry for the resolved model, later
// keys winning. Values are replaced wholesale per top-level key; nested
// objects are never deep-merged. Absence of either rule set is fine and the
// overlay may be empty.
func Merge(rs *models.Ruleset, model string) map[string]any {
	overlay := make(map[string]any, len(rs.ProviderRules))

	for k, v := range rs.ProviderRules {
		overlay[k] = v
	}
	for k, v := range rs.ModelRules[model] {
		overlay[k] = v
	}

	return overlay
}
