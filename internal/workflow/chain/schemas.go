package chain

import "z-song-ai-api/internal/domain/entity"

func intentJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"tone", "complexity", "needs_research"},
		"properties": map[string]any{
			"tone": map[string]any{
				"type": "string",
				"enum": []any{
					string(entity.ToneNeutral), string(entity.ToneUplifting), string(entity.ToneMelancholic),
					string(entity.ToneEnergetic), string(entity.ToneDark), string(entity.ToneRomantic), string(entity.TonePlayful),
				},
			},
			"complexity": map[string]any{
				"type": "string",
				"enum": []any{string(entity.ComplexitySimple), string(entity.ComplexityModerate), string(entity.ComplexityComplex)},
			},
			"needs_research": map[string]any{"type": "boolean"},
		},
	}
}

func researchJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"text", "sources"},
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
			"sources": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []any{"uri"},
					"properties": map[string]any{
						"uri":   map[string]any{"type": "string"},
						"title": map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}

// SongJSONSchema 歌曲简报的输出结构描述
func SongJSONSchema() map[string]any {
	props := make(map[string]any, len(entity.ArtifactFields))
	required := make([]any, 0, len(entity.ArtifactFields))
	for _, f := range entity.ArtifactFields {
		props[f] = map[string]any{"type": "string", "maxLength": entity.FieldLimits[f]}
		required = append(required, f)
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             required,
		"properties":           props,
	}
}

func critiqueJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"pass", "issues"},
		"properties": map[string]any{
			"pass":   map[string]any{"type": "boolean"},
			"issues": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	}
}

// refineJSONSchema 修订结果只包含改动过的字段，因此不设 required
func refineJSONSchema() map[string]any {
	props := make(map[string]any, len(entity.ArtifactFields))
	for _, f := range entity.ArtifactFields {
		props[f] = map[string]any{"type": "string"}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}
