package exam

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")
	// ErrInconsistent means an upstream invariant was already broken.
	ErrInconsistent = errors.New("inconsistent data")
)

// Rule names, as reported in ValidationError.Rule.
const (
	RuleSolutionOwner       = "solution_task_owner"
	RuleSolutionCardinality = "solution_cardinality"
	RuleTaskTemplateOwner   = "task_template_owner"
	RuleTaskTemplateKind    = "task_template_kind"
	RuleTaskTargets         = "task_targets"
	RuleTaskType            = "task_type"
	RuleAnswerSolutionMatch = "answer_solution_match"
	RuleAnswerOffered       = "answer_offered"
	RuleNoDoubleAnswer      = "answer_unique"
	RuleSheetName           = "sheet_name"
)

// ValidationError is a recoverable rejection of a write.
type ValidationError struct {
	Rule   string
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func reject(rule, reason string) error {
	return &ValidationError{Rule: rule, Reason: reason}
}

// IsValidation reports whether err is a ValidationError, returning it.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
