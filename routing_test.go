package orchestrator_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scholarpress/orchestrator"
)

func TestDefaultRouterSelection(t *testing.T) {
	router := orchestrator.NewDefaultRouter()

	t.Run("general by default", func(t *testing.T) {
		sub := validSubmission()
		require.Equal(t, orchestrator.DefinitionGeneral, router.SelectDefinition(sub).Name)
	})

	t.Run("clinical field of study", func(t *testing.T) {
		sub := validSubmission()
		sub.FieldOfStudy = "clinical"
		require.Equal(t, orchestrator.DefinitionClinical, router.SelectDefinition(sub).Name)
	})

	t.Run("ingredient verification tag wins over field", func(t *testing.T) {
		sub := validSubmission()
		sub.FieldOfStudy = "clinical"
		sub.SpecialRequirements = []string{orchestrator.RequirementIngredientVerification}
		require.Equal(t, orchestrator.DefinitionIngredient, router.SelectDefinition(sub).Name)
	})

	t.Run("unknown field falls back to general", func(t *testing.T) {
		sub := validSubmission()
		sub.FieldOfStudy = "astrophysics"
		require.Equal(t, orchestrator.DefinitionGeneral, router.SelectDefinition(sub).Name)
	})
}

func stageNames(d *orchestrator.Definition) []string {
	names := make([]string, 0, len(d.Stages))
	for _, s := range d.Stages {
		names = append(names, s.Name)
	}

	return names
}

func TestGeneralDefinitionShape(t *testing.T) {
	d := orchestrator.GeneralDefinition()

	require.Equal(t, []string{
		orchestrator.StageValidation,
		orchestrator.StageResearchAnalysis,
		orchestrator.StageQualityScore,
		orchestrator.StageEditorialReview,
		orchestrator.StagePeerReview,
		orchestrator.StageProduction,
		orchestrator.StageAnalytics,
	}, stageNames(d))

	// Strictly linear: every stage depends on its predecessor only.
	for i, s := range d.Stages {
		if i == 0 {
			require.Empty(t, s.DependsOn)
			continue
		}

		require.Equal(t, []string{d.Stages[i-1].Name}, s.DependsOn)
	}
}

func TestClinicalDefinitionShape(t *testing.T) {
	d := orchestrator.ClinicalDefinition()

	names := stageNames(d)
	require.Contains(t, names, orchestrator.StageEthicsReview)
	require.Contains(t, names, orchestrator.StageStatsReview)
	require.NotContains(t, stageNames(orchestrator.GeneralDefinition()), orchestrator.StageEthicsReview)

	// Ethics and statistical review fork after quality assessment and join
	// at editorial review.
	ethics, ok := d.Stage(orchestrator.StageEthicsReview)
	require.True(t, ok)
	require.Equal(t, []string{orchestrator.StageQualityScore}, ethics.DependsOn)

	stats, ok := d.Stage(orchestrator.StageStatsReview)
	require.True(t, ok)
	require.Equal(t, []string{orchestrator.StageQualityScore}, stats.DependsOn)

	editorial, ok := d.Stage(orchestrator.StageEditorialReview)
	require.True(t, ok)
	require.ElementsMatch(t, []string{
		orchestrator.StageEthicsReview,
		orchestrator.StageStatsReview,
	}, editorial.DependsOn)
}

func TestIngredientDefinitionShape(t *testing.T) {
	d := orchestrator.IngredientVerificationDefinition()

	verify, ok := d.Stage(orchestrator.StageIngredientVerify)
	require.True(t, ok)
	require.Equal(t, []string{orchestrator.StageValidation}, verify.DependsOn)
	require.Equal(t, orchestrator.AgentSubmissionValidator, verify.Agent)
	require.Equal(t, orchestrator.ActionVerifyIngredients, verify.Action)

	analysis, ok := d.Stage(orchestrator.StageResearchAnalysis)
	require.True(t, ok)
	require.Equal(t, []string{orchestrator.StageIngredientVerify}, analysis.DependsOn)
}

func TestRegistry(t *testing.T) {
	r := orchestrator.NewRegistry(orchestrator.GeneralDefinition())

	d, ok := r.Lookup(orchestrator.DefinitionGeneral)
	require.True(t, ok)
	require.Equal(t, orchestrator.DefinitionGeneral, d.Name)

	_, ok = r.Lookup("nope")
	require.False(t, ok)

	r.Add(orchestrator.ClinicalDefinition())
	_, ok = r.Lookup(orchestrator.DefinitionClinical)
	require.True(t, ok)
}
