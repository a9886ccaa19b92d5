package validation

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-song-ai-api/internal/domain/entity"
)

func wellFormed() *entity.SongArtifact {
	return &entity.SongArtifact{
		Title:            "Neon Skyline",
		TagSummary:       "synthwave, anthem, female vocals, 120 bpm, guitars",
		StyleDescription: "Synthwave anthem with bright female vocals, energetic 120 bpm drive, analog synths, driving electric guitars and gated reverb drums.",
		Body:             "[Verse]\nCity lights are calling\n[Chorus]\nWe run tonight\n[End]",
		Rationale:        "Bright synthwave palette for an energetic anthem.",
	}
}

func TestScore_WellFormedArtifactIsGood(t *testing.T) {
	res := Default().Score(wellFormed())

	assert.Equal(t, CompletenessMax, res.Breakdown.Completeness)
	assert.Equal(t, 18, res.Breakdown.Specificity, "analog synths, gated reverb, reverb")
	assert.Equal(t, BalanceMax, res.Breakdown.Balance)
	assert.Equal(t, CoherenceMax, res.Breakdown.Coherence)
	assert.Equal(t, 88, res.Score)
	assert.Equal(t, entity.ValidationGood, res.Status)
	assert.Empty(t, res.Issues)
	assert.Empty(t, res.Conflicts)
}

func TestScore_ConflictingConcepts(t *testing.T) {
	a := wellFormed()
	a.TagSummary = "ambient pop, calm, high-energy, female vocals"
	a.StyleDescription = "Ambient pop with female vocals, calm verses and a high-energy chorus, 100 bpm, piano and analog synths."

	res := Default().Score(a)

	require.NotEmpty(t, res.Conflicts)
	assert.Contains(t, res.Conflicts, "high-energy vs calm")
	assert.Less(t, res.Breakdown.Coherence, CoherenceMax)
	assert.Equal(t, CoherenceMax-conflictPenalty*len(res.Conflicts), res.Breakdown.Coherence)
}

func TestScore_BPMFeedsTempoConflicts(t *testing.T) {
	a := wellFormed()
	a.TagSummary = "pop, ballad, male vocals, 140 bpm, piano"
	a.StyleDescription = "Pop ballad with male vocals, downtempo feel, piano and strings."

	res := Default().Score(a)
	assert.Contains(t, res.Conflicts, "slow-tempo vs fast-tempo")
}

func TestScore_MissingAllCategories(t *testing.T) {
	a := &entity.SongArtifact{
		TagSummary:       "something, another thing",
		StyleDescription: "A piece about a long road home",
		Body:             "[Verse]\nla la\n[End]",
	}

	res := Default().Score(a)

	assert.Equal(t, 0, res.Breakdown.Completeness)
	assert.Equal(t, []string{
		"missing genre descriptor",
		"missing mood descriptor",
		"missing vocal descriptor",
		"missing tempo descriptor",
		"missing instrumentation descriptor",
	}, res.Issues)
	assert.Equal(t, entity.ValidationCritical, res.Status)
}

func TestScore_BalancePenalties(t *testing.T) {
	a := wellFormed()
	a.TagSummary = strings.Repeat("pop, ", 14)
	a.StyleDescription = "With a lot of raw energy and drive, synthwave and female vocals, analog synths, 120 bpm, guitars."
	a.Body = "[Verse]\nno closing marker"

	res := Default().Score(a)

	assert.Equal(t, BalanceMax-tagOverflowPenalty-frontLoadPenalty-missingMarkerPenalty, res.Breakdown.Balance)
	assert.Contains(t, res.Issues, "body is missing the closing [End] marker")
	assert.Contains(t, res.Suggestions, "Open the style description with the genre or vocal type.")
}

func TestScore_WordBand(t *testing.T) {
	short := &entity.SongArtifact{TagSummary: "pop", StyleDescription: "Pop song", Body: "[End]"}
	res := Default().Score(short)
	assert.Equal(t, BalanceMax-wordBandPenalty, res.Breakdown.Balance)

	long := wellFormed()
	long.StyleDescription = "Synthwave with female vocals. " + strings.Repeat("more words here ", 50)
	res = Default().Score(long)
	assert.Equal(t, BalanceMax-wordBandPenalty, res.Breakdown.Balance)
}

func TestScore_TotalOverAnyShape(t *testing.T) {
	dense := wellFormed()
	dense.StyleDescription += " Sidechain pumping, tape saturation, arpeggiated bass, vocoder, four-on-the-floor, key change."

	cases := []*entity.SongArtifact{
		nil,
		{},
		wellFormed(),
		dense,
		{Body: strings.Repeat("x", 10000)},
		{TagSummary: "calm, energetic, happy, sad, acoustic, electronic, slow, fast, instrumental, female vocals"},
	}
	for _, a := range cases {
		res := Default().Score(a)
		assert.GreaterOrEqual(t, res.Score, 0)
		assert.LessOrEqual(t, res.Score, 100)
		assert.Equal(t, entity.StatusForScore(res.Score), res.Status)
		assert.NotNil(t, res.Issues)
		assert.NotNil(t, res.Suggestions)
		assert.NotNil(t, res.Conflicts)
	}

	res := Default().Score(dense)
	assert.Equal(t, SpecificityMax, res.Breakdown.Specificity)
	assert.Equal(t, entity.ValidationOptimal, res.Status)
}

func TestScore_DoesNotMutateArtifact(t *testing.T) {
	a := wellFormed()
	before := *a
	_ = Default().Score(a)
	assert.Equal(t, before, *a)
}

func TestVocabulary_CustomFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
categories:
  - name: genre
    terms: [polka]
conflicts: []
`), 0o644))

	v, err := LoadVocabularyFile(path)
	require.NoError(t, err)
	s, err := NewScorer(v)
	require.NoError(t, err)

	res := s.Score(&entity.SongArtifact{TagSummary: "polka", StyleDescription: "Polka", Body: "[End]"})
	assert.Equal(t, CompletenessMax, res.Breakdown.Completeness)
}

func TestVocabulary_Invalid(t *testing.T) {
	_, err := ParseVocabulary([]byte("categories: []"))
	assert.Error(t, err)

	_, err = ParseVocabulary([]byte("categories:\n  - name: genre\n    terms: []\n"))
	assert.Error(t, err)

	_, err = ParseVocabulary([]byte("categories: [oops"))
	assert.Error(t, err)

	_, err = NewScorer(nil)
	assert.Error(t, err)
}

func TestService_Validate(t *testing.T) {
	svc := NewService(nil)
	res := svc.Validate(context.Background(), wellFormed())
	assert.Equal(t, Default().Score(wellFormed()), res)
}
