package orchestrator

// Template names of the built-in workflow definitions.
const (
	DefinitionGeneral    = "general"
	DefinitionClinical   = "clinical"
	DefinitionIngredient = "ingredient_verification"
)

// Special requirement tags recognised by the routing rules.
const (
	RequirementIngredientVerification = "needs-ingredient-verification"
)

// Canonical stage names.
const (
	StageValidation       = "submission_validation"
	StageIngredientVerify = "ingredient_verification"
	StageResearchAnalysis = "research_analysis"
	StageQualityScore     = "quality_assessment"
	StageEthicsReview     = "ethics_validation"
	StageStatsReview      = "statistical_review"
	StageEditorialReview  = "editorial_review"
	StagePeerReview       = "peer_review"
	StageProduction       = "production"
	StageAnalytics        = "analytics"
)

// Router selects the workflow definition applied to a submission. It must be
// total: every submission maps to some definition.
type Router interface {
	SelectDefinition(sub Submission) *Definition
}

// Registry resolves definition names to definitions for instances loaded
// from the store.
type Registry struct {
	byName map[string]*Definition
}

func NewRegistry(defs ...*Definition) *Registry {
	r := &Registry{byName: make(map[string]*Definition)}
	for _, d := range defs {
		r.byName[d.Name] = d
	}

	return r
}

func (r *Registry) Lookup(name string) (*Definition, bool) {
	d, ok := r.byName[name]
	return d, ok
}

func (r *Registry) Add(d *Definition) {
	r.byName[d.Name] = d
}

// DefaultRouter evaluates the built-in routing rules in order: explicit
// special requirement tags first, then field of study, then the default
// linear template. The evaluation is a deterministic pure function of the
// submission fields.
type DefaultRouter struct {
	general    *Definition
	clinical   *Definition
	ingredient *Definition
}

func NewDefaultRouter() *DefaultRouter {
	return &DefaultRouter{
		general:    GeneralDefinition(),
		clinical:   ClinicalDefinition(),
		ingredient: IngredientVerificationDefinition(),
	}
}

// Definitions returns every definition the router can select, for
// registration in a Registry.
func (r *DefaultRouter) Definitions() []*Definition {
	return []*Definition{r.general, r.clinical, r.ingredient}
}

func (r *DefaultRouter) SelectDefinition(sub Submission) *Definition {
	if sub.HasRequirement(RequirementIngredientVerification) {
		return r.ingredient
	}

	switch sub.FieldOfStudy {
	case "clinical":
		return r.clinical
	default:
		return r.general
	}
}

func stage(name string, agent AgentType, action Action, deps ...string) StageSpec {
	return StageSpec{
		Name:      name,
		Agent:     agent,
		Action:    action,
		DependsOn: deps,
		Timeout:   defaultStageTimeout,
		Retry:     DefaultRetryPolicy(),
	}
}

// GeneralDefinition is the default linear template covering the seven
// canonical stages.
func GeneralDefinition() *Definition {
	return MustDefinition(DefinitionGeneral,
		stage(StageValidation, AgentSubmissionValidator, ActionValidateSubmission),
		stage(StageResearchAnalysis, AgentResearchDiscovery, ActionAnalyzeResearchContext, StageValidation),
		stage(StageQualityScore, AgentQualityScorer, ActionScoreQuality, StageResearchAnalysis),
		stage(StageEditorialReview, AgentEditorialDecision, ActionRecommendDecision, StageQualityScore),
		stage(StagePeerReview, AgentReviewCoordinator, ActionCoordinateReview, StageEditorialReview),
		stage(StageProduction, AgentProductionFormatter, ActionFormatManuscript, StagePeerReview),
		stage(StageAnalytics, AgentAnalytics, ActionCompileAnalytics, StageProduction),
	)
}

// ClinicalDefinition adds ethics and statistical review stages between
// quality assessment and editorial review. The two review stages share the
// same prerequisite and run concurrently.
func ClinicalDefinition() *Definition {
	return MustDefinition(DefinitionClinical,
		stage(StageValidation, AgentSubmissionValidator, ActionValidateSubmission),
		stage(StageResearchAnalysis, AgentResearchDiscovery, ActionAnalyzeResearchContext, StageValidation),
		stage(StageQualityScore, AgentQualityScorer, ActionScoreQuality, StageResearchAnalysis),
		stage(StageEthicsReview, AgentQualityScorer, ActionReviewEthics, StageQualityScore),
		stage(StageStatsReview, AgentQualityScorer, ActionReviewStatistics, StageQualityScore),
		stage(StageEditorialReview, AgentEditorialDecision, ActionRecommendDecision, StageEthicsReview, StageStatsReview),
		stage(StagePeerReview, AgentReviewCoordinator, ActionCoordinateReview, StageEditorialReview),
		stage(StageProduction, AgentProductionFormatter, ActionFormatManuscript, StagePeerReview),
		stage(StageAnalytics, AgentAnalytics, ActionCompileAnalytics, StageProduction),
	)
}

// IngredientVerificationDefinition extends the general template with an
// extra validation stage required by the "needs-ingredient-verification"
// special requirement tag.
func IngredientVerificationDefinition() *Definition {
	return MustDefinition(DefinitionIngredient,
		stage(StageValidation, AgentSubmissionValidator, ActionValidateSubmission),
		stage(StageIngredientVerify, AgentSubmissionValidator, ActionVerifyIngredients, StageValidation),
		stage(StageResearchAnalysis, AgentResearchDiscovery, ActionAnalyzeResearchContext, StageIngredientVerify),
		stage(StageQualityScore, AgentQualityScorer, ActionScoreQuality, StageResearchAnalysis),
		stage(StageEditorialReview, AgentEditorialDecision, ActionRecommendDecision, StageQualityScore),
		stage(StagePeerReview, AgentReviewCoordinator, ActionCoordinateReview, StageEditorialReview),
		stage(StageProduction, AgentProductionFormatter, ActionFormatManuscript, StagePeerReview),
		stage(StageAnalytics, AgentAnalytics, ActionCompileAnalytics, StageProduction),
	)
}
