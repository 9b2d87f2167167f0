package routing

import (
	"reflect"
	"testing"

	"modelrules/models"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name          string
		providerRules models.ProviderRules
		modelRules    models.ModelRules
		model         string
		want          map[string]any
	}{
		{
			name: "model rules win over provider rules",
			providerRules: models.ProviderRules{
				"temperature": 0.2,
			},
			modelRules: models.ModelRules{
				"gpt-4": {"temperature": 0.9},
			},
			model: "gpt-4",
			want:  map[string]any{"temperature": 0.9},
		},
		{
			name:          "provider rules only",
			providerRules: models.ProviderRules{"temperature": 0.5, "max_tokens": 1024},
			model:         "gpt-4",
			want:          map[string]any{"temperature": 0.5, "max_tokens": 1024},
		},
		{
			name: "model rules for a different model are ignored",
			providerRules: models.ProviderRules{
				"top_p": 0.8,
			},
			modelRules: models.ModelRules{
				"gpt-4": {"top_p": 0.1},
			},
			model: "gpt-4o",
			want:  map[string]any{"top_p": 0.8},
		},
		{
			name:  "both absent yields empty overlay",
			model: "gpt-4",
			want:  map[string]any{},
		},
		{
			name: "disjoint keys are combined",
			providerRules: models.ProviderRules{
				"temperature": 0.3,
			},
			modelRules: models.ModelRules{
				"gpt-4": {"frequency_penalty": 1.5},
			},
			model: "gpt-4",
			want:  map[string]any{"temperature": 0.3, "frequency_penalty": 1.5},
		},
		{
			name: "nested values are replaced wholesale",
			providerRules: models.ProviderRules{
				"response_format": map[string]any{"type": "text", "strict": true},
			},
			modelRules: models.ModelRules{
				"gpt-4": {"response_format": map[string]any{"type": "json_object"}},
			},
			model: "gpt-4",
			want:  map[string]any{"response_format": map[string]any{"type": "json_object"}},
		},
		{
			name: "arbitrary extra keys pass through",
			providerRules: models.ProviderRules{
				"stop":        []any{"\n"},
				"custom_flag": "on",
			},
			model: "gpt-4",
			want:  map[string]any{"stop": []any{"\n"}, "custom_flag": "on"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := &models.Ruleset{
				ProviderRules: tt.providerRules,
				ModelRules:    tt.modelRules,
			}
			got := Merge(rs, tt.model)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Merge() = %#v, expected %#v", got, tt.want)
			}
		})
	}
}

func TestMerge_DoesNotMutateRuleset(t *testing.T) {
	rs := &models.Ruleset{
		ProviderRules: models.ProviderRules{"temperature": 0.2},
		ModelRules:    models.ModelRules{"gpt-4": {"temperature": 0.9}},
	}

	overlay := Merge(rs, "gpt-4")
	overlay["temperature"] = 0.0
	overlay["injected"] = true

	if rs.ProviderRules["temperature"] != 0.2 {
		t.Error("provider rules were mutated by overlay edit")
	}
	if rs.ModelRules["gpt-4"]["temperature"] != 0.9 {
		t.Error("model rules were mutated by overlay edit")
	}
}
