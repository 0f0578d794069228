package exam

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ruleOf(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		return ""
	}
	ve, ok := IsValidation(err)
	require.True(t, ok, "want ValidationError, got %v", err)
	return ve.Rule
}

func TestRules(t *testing.T) {
	alice := "alice"
	tpl := Template{SheetHeader{ID: "t", Stamp: Stamp{CreatorID: alice}}}
	inst := Instance{SheetHeader{ID: "i", Stamp: Stamp{CreatorID: alice}}}
	task := Task{ID: "k", Type: TrueFalse, Stamp: Stamp{CreatorID: alice}}

	tests := []struct {
		name string
		err  error
		rule string
	}{
		{"name ok", ruleSheetName("Midterm"), ""},
		{"name blank", ruleSheetName("   "), RuleSheetName},
		{"name long", ruleSheetName(strings.Repeat("x", 257)), RuleSheetName},
		{"name at limit", ruleSheetName(strings.Repeat("é", 256)), ""},
		{"type ok", ruleTaskType(MultiChoice), ""},
		{"type unknown", ruleTaskType("ESSAY"), RuleTaskType},
		{"no targets", ruleTaskTargets(nil), RuleTaskTargets},
		{"targets", ruleTaskTargets([]string{"t"}), ""},
		{"own template", ruleTaskTemplateOwner(alice, tpl), ""},
		{"foreign template", ruleTaskTemplateOwner("bob", tpl), RuleTaskTemplateOwner},
		{"template kind", ruleTaskTemplateKind(tpl), ""},
		{"instance kind", ruleTaskTemplateKind(inst), RuleTaskTemplateKind},
		{"own task", ruleSolutionOwner(alice, task), ""},
		{"foreign task", ruleSolutionOwner("bob", task), RuleSolutionOwner},
		{"first true/false key", ruleSolutionCardinality(TrueFalse, 1), ""},
		{"second true/false key", ruleSolutionCardinality(TrueFalse, 2), RuleSolutionCardinality},
		{"second text key", ruleSolutionCardinality(Text, 2), RuleSolutionCardinality},
		{"many choices", ruleSolutionCardinality(MultiChoice, 5), ""},
		{"no solution", ruleAnswerSolutionMatch("k", nil), ""},
		{"matching solution", ruleAnswerSolutionMatch("k", &Solution{TaskID: "k"}), ""},
		{"mismatched solution", ruleAnswerSolutionMatch("k", &Solution{TaskID: "other"}), RuleAnswerSolutionMatch},
		{"offered", ruleAnswerOffered(false, true), ""},
		{"growing instance", ruleAnswerOffered(true, false), ""},
		{"not offered", ruleAnswerOffered(false, false), RuleAnswerOffered},
		{"fresh answer", ruleNoDoubleAnswer(false), ""},
		{"double answer", ruleNoDoubleAnswer(true), RuleNoDoubleAnswer},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.rule, ruleOf(t, tc.err))
		})
	}
}

func TestRuleReasons(t *testing.T) {
	assert.EqualError(t, ruleSolutionOwner("bob", Task{Stamp: Stamp{CreatorID: "alice"}}), "not your task")
	assert.EqualError(t, ruleSolutionCardinality(TrueFalse, 2), "too many solutions for this task type")
	assert.EqualError(t, ruleTaskTemplateOwner("bob", Template{SheetHeader{Stamp: Stamp{CreatorID: "alice"}}}), "not your template")
	assert.EqualError(t, ruleTaskTemplateKind(Instance{}), "target is not a template")
	assert.EqualError(t, ruleAnswerSolutionMatch("a", &Solution{TaskID: "b"}), "solution mismatch")
	assert.EqualError(t, ruleNoDoubleAnswer(true), "already answered")
}
