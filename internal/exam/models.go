package exam

import (
	"encoding/json"
	"slices"
	"time"
)

type TaskType string

const (
	MultiChoice TaskType = "MULTI_CHOICE"
	Text        TaskType = "TEXT"
	TrueFalse   TaskType = "TRUE_FALSE"
)

func (t TaskType) Valid() bool {
	switch t {
	case MultiChoice, Text, TrueFalse:
		return true
	}
	return false
}

// SingleSolution reports whether tasks of this type carry one canonical key.
func (t TaskType) SingleSolution() bool { return t != MultiChoice }

// Stamp is the create/edit attribution carried by every entity.
type Stamp struct {
	CreatorID string    `json:"creator"`
	EditorID  *string   `json:"editor"`
	Created   time.Time `json:"created"`
	Edited    time.Time `json:"edited"`
}

func newStamp(creator string, now time.Time) Stamp {
	return Stamp{CreatorID: creator, Created: now, Edited: now}
}

func (s *Stamp) touch(editor string, now time.Time) {
	s.EditorID = &editor
	s.Edited = now
}

// SheetHeader is the shape shared by templates and instances.
type SheetHeader struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	TaskIDs []string `json:"-"`
	Stamp
}

// ExamSheet is either a Template or an Instance.
type ExamSheet interface {
	Header() SheetHeader
	IsTemplate() bool
}

// Template is an exam sheet authored for reuse. It is never answered directly.
type Template struct{ SheetHeader }

// Instance is a personal exam sheet accumulating one user's answered tasks.
type Instance struct{ SheetHeader }

func (t Template) Header() SheetHeader { return t.SheetHeader }
func (Template) IsTemplate() bool      { return true }
func (i Instance) Header() SheetHeader { return i.SheetHeader }
func (Instance) IsTemplate() bool      { return false }

// Fork copies t into a personal instance owned by owner. The task set is
// shared by reference; tasks are never copied.
func Fork(t Template, id, owner string, now time.Time) Instance {
	return Instance{SheetHeader{
		ID:      id,
		Name:    t.Name,
		TaskIDs: slices.Clone(t.TaskIDs),
		Stamp:   newStamp(owner, now),
	}}
}

func hasTask(h SheetHeader, taskID string) bool {
	return slices.Contains(h.TaskIDs, taskID)
}

type Task struct {
	ID       string   `json:"id"`
	SheetIDs []string `json:"exam_sheet"`
	Type     TaskType `json:"type"`
	Question string   `json:"question"`
	MaxGrade *int     `json:"max_grade"`
	Stamp
}

type Solution struct {
	ID           string  `json:"id"`
	TaskID       string  `json:"task"`
	ChoiceAnswer bool    `json:"choice_answer"`
	TextAnswer   *string `json:"text_answer"`
	Points       int     `json:"points"`
	Stamp
}

type Answer struct {
	ID           string  `json:"id"`
	TaskID       string  `json:"task"`
	SolutionID   *string `json:"solution"`
	ChoiceAnswer bool    `json:"choice_answer"`
	TextAnswer   *string `json:"text_answer"`
	Submit       bool    `json:"submit"`
	Grade        *int    `json:"grade"` // manually assigned; see CalculatedGrade
	Stamp
}

// GradedAnswer is an answer joined with what grading needs.
type GradedAnswer struct {
	Answer   Answer
	TaskType TaskType
	Solution *Solution
}

// ---- read views (nested for display) ----

type AnswerView struct {
	Answer
	CalculatedGrade int `json:"calculated_grade"`
}

type SolutionView struct {
	Solution
	Answers []AnswerView `json:"answer"`
}

type TaskView struct {
	Task
	Solutions []SolutionView `json:"related_solutions"`
}

type SheetView struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Template       bool       `json:"template"`
	Tasks          []TaskView `json:"tasks"`
	YourFinalGrade int        `json:"your_final_grade"`
	Stamp
}

// ---- write inputs ----

type NewSheet struct {
	Name     string `json:"name"`
	Template *bool  `json:"template"` // default true
}

type SheetPatch struct {
	Name *string `json:"name"`
}

type NewTask struct {
	SheetIDs IDList   `json:"exam_sheet"`
	Type     TaskType `json:"type"` // default TEXT
	Question string   `json:"question"`
	MaxGrade *int     `json:"max_grade"`
}

type TaskPatch struct {
	Type     *TaskType `json:"type"`
	Question *string   `json:"question"`
	MaxGrade *int      `json:"max_grade"`
}

type NewSolution struct {
	TaskID       string  `json:"task"`
	ChoiceAnswer bool    `json:"choice_answer"`
	TextAnswer   *string `json:"text_answer"`
	Points       *int    `json:"points"` // default 1
}

type NewAnswer struct {
	TaskID       string  `json:"task"`
	SolutionID   *string `json:"solution"`
	ChoiceAnswer bool    `json:"choice_answer"`
	TextAnswer   *string `json:"text_answer"`
	Submit       bool    `json:"submit"`
	Grade        *int    `json:"grade"`
}

// IDList decodes from either a single id or an array of ids.
type IDList []string

func (l *IDList) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*l = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*l = IDList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}
