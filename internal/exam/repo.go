package exam

import "context"

// Ordering fields accepted by ListOpts.Ordering (prefix "-" for descending).
var sheetOrderings = map[string]string{
	"creator":  "creator_id",
	"name":     "name",
	"created":  "created_at",
	"template": "template",
}

type ListOpts struct {
	CreatorID string
	Template  *bool
	Ordering  string // creator|name|created|template, "-" prefix for desc
	Limit     int
	Offset    int
}

type TaskListOpts struct {
	SheetID   string
	CreatorID string
	Limit     int
	Offset    int
}

type SolutionListOpts struct {
	TaskID string
	Limit  int
	Offset int
}

type AnswerListOpts struct {
	TaskID     string
	CreatorID  string
	SolutionID string
	Limit      int
	Offset     int
}

// Repo is the set of queries the domain runs. Implementations are bound to
// either a database handle or an open transaction. Errors are ErrNotFound,
// ErrConflict (constraint violated) or wrapped driver errors.
type Repo interface {
	InsertSheet(ctx context.Context, s ExamSheet) error
	// InsertInstanceIfAbsent creates in unless its creator already owns an
	// instance; created is false in that case and nothing is written.
	InsertInstanceIfAbsent(ctx context.Context, in Instance) (created bool, err error)
	GetSheet(ctx context.Context, id string) (ExamSheet, error)
	ListSheets(ctx context.Context, opts ListOpts) ([]ExamSheet, error)
	UpdateSheet(ctx context.Context, h SheetHeader) error
	DeleteSheet(ctx context.Context, id string) error
	// InstanceOf finds the non-template sheet owned by creatorID.
	InstanceOf(ctx context.Context, creatorID string) (Instance, error)
	// FirstTemplateWithTask returns the oldest template containing taskID.
	FirstTemplateWithTask(ctx context.Context, taskID string) (Template, error)
	// LinkTask adds taskID to the sheet's task set; linking twice is a no-op.
	LinkTask(ctx context.Context, sheetID, taskID string) error

	InsertTask(ctx context.Context, t Task) error
	GetTask(ctx context.Context, id string) (Task, error)
	ListTasks(ctx context.Context, opts TaskListOpts) ([]Task, error)
	UpdateTask(ctx context.Context, t Task) error
	DeleteTask(ctx context.Context, id string) error

	InsertSolution(ctx context.Context, s Solution) error
	GetSolution(ctx context.Context, id string) (Solution, error)
	ListSolutions(ctx context.Context, opts SolutionListOpts) ([]Solution, error)
	CountSolutions(ctx context.Context, taskID string) (int, error)
	DeleteSolution(ctx context.Context, id string) error

	InsertAnswer(ctx context.Context, a Answer) error
	GetAnswer(ctx context.Context, id string) (Answer, error)
	ListAnswers(ctx context.Context, opts AnswerListOpts) ([]Answer, error)
	AnswerExists(ctx context.Context, creatorID, solutionID string) (bool, error)
	DeleteAnswer(ctx context.Context, id string) error
	// GradedAnswers lists creatorID's answers to tasks of the sheet.
	GradedAnswers(ctx context.Context, sheetID, creatorID string) ([]GradedAnswer, error)
}

// Store is a Repo that can also run a unit of work atomically.
type Store interface {
	Repo
	InTx(ctx context.Context, fn func(Repo) error) error
}
