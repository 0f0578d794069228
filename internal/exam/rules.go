package exam

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Write-time preconditions. Each is standalone; callers run the cheap
// ownership/type rules before the ones that need a uniqueness query.

const maxSheetName = 256

func ruleSheetName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return reject(RuleSheetName, "name is required")
	}
	if utf8.RuneCountInString(name) > maxSheetName {
		return reject(RuleSheetName, fmt.Sprintf("name is longer than %d characters", maxSheetName))
	}
	return nil
}

func ruleTaskType(t TaskType) error {
	if !t.Valid() {
		return reject(RuleTaskType, fmt.Sprintf("unknown task type %q", t))
	}
	return nil
}

func ruleTaskTargets(ids []string) error {
	if len(ids) == 0 {
		return reject(RuleTaskTargets, "task needs a template")
	}
	return nil
}

func ruleTaskTemplateOwner(actor string, target ExamSheet) error {
	if target.Header().CreatorID != actor {
		return reject(RuleTaskTemplateOwner, "not your template")
	}
	return nil
}

func ruleTaskTemplateKind(target ExamSheet) error {
	if !target.IsTemplate() {
		return reject(RuleTaskTemplateKind, "target is not a template")
	}
	return nil
}

func ruleSolutionOwner(actor string, task Task) error {
	if task.CreatorID != actor {
		return reject(RuleSolutionOwner, "not your task")
	}
	return nil
}

// ruleSolutionCardinality checks that a task of type t may hold n solutions.
func ruleSolutionCardinality(t TaskType, n int) error {
	if t.SingleSolution() && n > 1 {
		return reject(RuleSolutionCardinality, "too many solutions for this task type")
	}
	return nil
}

func ruleAnswerSolutionMatch(taskID string, sol *Solution) error {
	if sol != nil && sol.TaskID != taskID {
		return reject(RuleAnswerSolutionMatch, "solution mismatch")
	}
	return nil
}

// ruleAnswerOffered keeps the first answer of a user forkable: with no
// personal instance yet, some template must contain the task.
func ruleAnswerOffered(hasInstance, inTemplate bool) error {
	if !hasInstance && !inTemplate {
		return reject(RuleAnswerOffered, "task is not offered by any template")
	}
	return nil
}

func ruleNoDoubleAnswer(already bool) error {
	if already {
		return reject(RuleNoDoubleAnswer, "already answered")
	}
	return nil
}
