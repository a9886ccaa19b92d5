package node

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		want      map[string]any
		wantStage RepairStage
	}{
		{
			name:      "unterminated string",
			in:        `{"title": "abc`,
			want:      map[string]any{"title": "abc"},
			wantStage: RepairStageStructural,
		},
		{
			name:      "open array",
			in:        `{"a": [1, 2`,
			want:      map[string]any{"a": []any{float64(1), float64(2)}},
			wantStage: RepairStageStructural,
		},
		{
			name:      "complete input round trips",
			in:        `{"title": "Neon", "body": "[Verse]\nhi\n[End]"}`,
			want:      map[string]any{"title": "Neon", "body": "[Verse]\nhi\n[End]"},
			wantStage: RepairStageStrict,
		},
		{
			name:      "code fence stripped",
			in:        "```json\n{\"title\": \"Fenced\"}\n```",
			want:      map[string]any{"title": "Fenced"},
			wantStage: RepairStageStrict,
		},
		{
			name:      "open fence with partial body",
			in:        "```json\n{\"title\": \"Half",
			want:      map[string]any{"title": "Half"},
			wantStage: RepairStageStructural,
		},
		{
			name:      "dangling comma",
			in:        `{"title": "x",`,
			want:      map[string]any{"title": "x"},
			wantStage: RepairStageStructural,
		},
		{
			name:      "dangling colon",
			in:        `{"title": "x", "tag_summary":`,
			want:      map[string]any{"title": "x", "tag_summary": nil},
			wantStage: RepairStageStructural,
		},
		{
			name:      "half key falls back to previous comma",
			in:        `{"title": "x", "tag_su`,
			want:      map[string]any{"title": "x"},
			wantStage: RepairStageStructural,
		},
		{
			name:      "escaped quote inside string",
			in:        `{"title": "say \"hi\" now`,
			want:      map[string]any{"title": `say "hi" now`},
			wantStage: RepairStageStructural,
		},
		{
			name:      "trailing backslash dropped",
			in:        `{"title": "abc\`,
			want:      map[string]any{"title": "abc"},
			wantStage: RepairStageStructural,
		},
		{
			name:      "nested objects closed in order",
			in:        `{"meta": {"tags": ["a", {"b": "c`,
			want:      map[string]any{"meta": map[string]any{"tags": []any{"a", map[string]any{"b": "c"}}}},
			wantStage: RepairStageStructural,
		},
		{
			name:      "leading prose ignored",
			in:        `Here you go: {"title": "Lead"}`,
			want:      map[string]any{"title": "Lead"},
			wantStage: RepairStageStrict,
		},
		{
			name:      "empty input",
			in:        "   ",
			want:      map[string]any{},
			wantStage: RepairStageEmpty,
		},
		{
			name:      "garbage without fields",
			in:        `not json at all`,
			want:      map[string]any{},
			wantStage: RepairStageEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, stage := RepairJSONWithStage(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("RepairJSON(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
			assert.Equal(t, tt.wantStage, stage)
		})
	}
}

func TestRepairJSON_RegexFallback(t *testing.T) {
	// 结构上无法补全（键值之间缺冒号），但字段本身可被逐个定位
	in := `{"title": "Night Drive" "tag_summary": "synthwave, \"retro\"" garbage ] }`
	got, stage := RepairJSONWithStage(in)

	assert.Equal(t, RepairStageRegex, stage)
	assert.Equal(t, map[string]any{
		"title":       "Night Drive",
		"tag_summary": `synthwave, "retro"`,
	}, got)
}

func TestRepairJSON_GrowingPrefixesNeverPanic(t *testing.T) {
	full := `{"title": "Run", "tag_summary": ["pop", "female vocals"], "style_description": "Bright pop, 120 bpm", "body": "[Verse]\nGo \"now\"\n[End]", "rationale": "ok"}`
	for i := 0; i <= len(full); i++ {
		out := RepairJSON(full[:i])
		require.NotNil(t, out, "prefix %d", i)
	}
	assert.Len(t, RepairJSON(full), 5)
}

func TestStrictParseJSON(t *testing.T) {
	out, err := StrictParseJSON("```json\n{\"title\": \"A\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "A", out["title"])

	_, err = StrictParseJSON(`{"title": "A"`)
	assert.Error(t, err)

	_, err = StrictParseJSON(`["not", "object"]`)
	assert.Error(t, err)

	_, err = StrictParseJSON("")
	assert.Error(t, err)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFence(`  {"a":1}  `))
	assert.Equal(t, `{"a":`, StripCodeFence("```json\n{\"a\":"))
	assert.Equal(t, "", StripCodeFence("```json"))
}
