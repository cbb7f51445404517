package intent

// Intent classifies the purpose of a conversational turn. It drives the
// ranking weight matrix, so the set is closed: adding a value here must be
// accompanied by new columns in the ranking tables.
type Intent string

const (
	DecisionRequest Intent = "decision_request"
	Analysis        Intent = "analysis"
	FactCheck       Intent = "fact_check"
	Planning        Intent = "planning"
	Reflection      Intent = "reflection"
	KaizenReview    Intent = "kaizen_review"
	Casual          Intent = "casual"
)

// AllIntents returns every defined intent.
func AllIntents() []Intent {
	return []Intent{
		DecisionRequest,
		Analysis,
		FactCheck,
		Planning,
		Reflection,
		KaizenReview,
		Casual,
	}
}

// ValidIntent reports whether s names a defined intent.
func ValidIntent(s string) bool {
	for _, i := range AllIntents() {
		if Intent(s) == i {
			return true
		}
	}
	return false
}
