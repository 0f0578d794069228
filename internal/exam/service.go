package exam

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-sheets/internal/grading"
)

// Service holds the exam sheet business logic: write validation, the lazy
// personal exam workflow and grading. Transport layers stay thin on top.
type Service struct {
	store  Store
	grader grading.Grader
	log    *zap.Logger
	now    func() time.Time
	newID  func() string
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option        { return func(s *Service) { s.log = l } }
func WithGrader(g grading.Grader) Option     { return func(s *Service) { s.grader = g } }
func WithClock(now func() time.Time) Option  { return func(s *Service) { s.now = now } }
func WithIDGenerator(f func() string) Option { return func(s *Service) { s.newID = f } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		grader: grading.NewDefaultGrader(),
		log:    zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) workflow(r Repo) instantiation {
	return instantiation{repo: r, newID: s.newID, now: s.now, log: s.log}
}

func (s *Service) rejected(op string, err error) error {
	if ve, ok := IsValidation(err); ok {
		s.log.Debug("write rejected", zap.String("op", op), zap.String("rule", ve.Rule), zap.String("reason", ve.Reason))
	}
	return err
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return err
}

// ---- grading ----

func response(t TaskType, a Answer, sol *Solution) grading.Response {
	r := grading.Response{TaskType: string(t), Choice: a.ChoiceAnswer, Submit: a.Submit}
	if sol != nil {
		r.Key = &grading.Key{Choice: sol.ChoiceAnswer, Points: sol.Points}
	}
	return r
}

// CalculatedGrade is the points awarded for one answer against its solution.
func (s *Service) CalculatedGrade(t TaskType, a Answer, sol *Solution) int {
	return s.grader.Grade(response(t, a, sol))
}

// UserFinalGrade sums the calculated grades of userID's answers to the
// sheet's tasks. A user with no answers there scores 0.
func (s *Service) UserFinalGrade(ctx context.Context, sheetID, userID string) (int, error) {
	if _, err := s.store.GetSheet(ctx, sheetID); err != nil {
		return 0, notFound("exam sheet", sheetID, err)
	}
	return s.finalGrade(ctx, s.store, sheetID, userID)
}

func (s *Service) finalGrade(ctx context.Context, r Repo, sheetID, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}
	graded, err := r.GradedAnswers(ctx, sheetID, userID)
	if err != nil {
		return 0, err
	}
	rs := make([]grading.Response, 0, len(graded))
	for _, g := range graded {
		rs = append(rs, response(g.TaskType, g.Answer, g.Solution))
	}
	return s.grader.Total(rs), nil
}

// ---- exam sheets ----

func (s *Service) CreateSheet(ctx context.Context, actor string, in NewSheet) (ExamSheet, error) {
	if err := ruleSheetName(in.Name); err != nil {
		return nil, s.rejected("create_sheet", err)
	}
	h := SheetHeader{ID: s.newID(), Name: strings.TrimSpace(in.Name), TaskIDs: []string{}, Stamp: newStamp(actor, s.now())}
	if in.Template == nil || *in.Template {
		t := Template{h}
		if err := s.store.InsertSheet(ctx, t); err != nil {
			return nil, err
		}
		return t, nil
	}
	inst := Instance{h}
	created, err := s.store.InsertInstanceIfAbsent(ctx, inst)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, fmt.Errorf("%w: user already owns a personal exam", ErrConflict)
	}
	return inst, nil
}

func (s *Service) Sheet(ctx context.Context, id string) (ExamSheet, error) {
	sh, err := s.store.GetSheet(ctx, id)
	return sh, notFound("exam sheet", id, err)
}

// PersonalExam returns userID's instance, or ErrNotFound before their first answer.
func (s *Service) PersonalExam(ctx context.Context, userID string) (Instance, error) {
	return s.store.InstanceOf(ctx, userID)
}

// SheetView returns the sheet with nested tasks, solutions and answers and
// the viewer's final grade on it.
func (s *Service) SheetView(ctx context.Context, viewer, id string) (SheetView, error) {
	sh, err := s.Sheet(ctx, id)
	if err != nil {
		return SheetView{}, err
	}
	return s.sheetView(ctx, s.store, sh, viewer)
}

func (s *Service) ListSheets(ctx context.Context, viewer string, opts ListOpts) ([]SheetView, error) {
	sheets, err := s.store.ListSheets(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]SheetView, 0, len(sheets))
	for _, sh := range sheets {
		v, err := s.sheetView(ctx, s.store, sh, viewer)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) UpdateSheet(ctx context.Context, actor, id string, p SheetPatch) (ExamSheet, error) {
	var out ExamSheet
	err := s.store.InTx(ctx, func(r Repo) error {
		sh, err := r.GetSheet(ctx, id)
		if err != nil {
			return notFound("exam sheet", id, err)
		}
		h := sh.Header()
		if p.Name != nil {
			if err := ruleSheetName(*p.Name); err != nil {
				return err
			}
			h.Name = strings.TrimSpace(*p.Name)
		}
		h.touch(actor, s.now())
		if err := r.UpdateSheet(ctx, h); err != nil {
			return err
		}
		if sh.IsTemplate() {
			out = Template{h}
		} else {
			out = Instance{h}
		}
		return nil
	})
	return out, s.rejected("update_sheet", err)
}

func (s *Service) DeleteSheet(ctx context.Context, id string) error {
	return notFound("exam sheet", id, s.store.DeleteSheet(ctx, id))
}

func (s *Service) sheetView(ctx context.Context, r Repo, sh ExamSheet, viewer string) (SheetView, error) {
	h := sh.Header()
	tasks, err := r.ListTasks(ctx, TaskListOpts{SheetID: h.ID})
	if err != nil {
		return SheetView{}, err
	}
	tvs := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		tv, err := s.taskView(ctx, r, t)
		if err != nil {
			return SheetView{}, err
		}
		tvs = append(tvs, tv)
	}
	grade, err := s.finalGrade(ctx, r, h.ID, viewer)
	if err != nil {
		return SheetView{}, err
	}
	return SheetView{
		ID:             h.ID,
		Name:           h.Name,
		Template:       sh.IsTemplate(),
		Tasks:          tvs,
		YourFinalGrade: grade,
		Stamp:          h.Stamp,
	}, nil
}

// ---- tasks ----

func (s *Service) CreateTask(ctx context.Context, actor string, in NewTask) (Task, error) {
	if in.Type == "" {
		in.Type = Text
	}
	if err := ruleTaskType(in.Type); err != nil {
		return Task{}, s.rejected("create_task", err)
	}
	targets := slices.Compact(slices.Sorted(slices.Values([]string(in.SheetIDs))))
	if err := ruleTaskTargets(targets); err != nil {
		return Task{}, s.rejected("create_task", err)
	}
	t := Task{
		ID:       s.newID(),
		SheetIDs: targets,
		Type:     in.Type,
		Question: in.Question,
		MaxGrade: in.MaxGrade,
		Stamp:    newStamp(actor, s.now()),
	}
	err := s.store.InTx(ctx, func(r Repo) error {
		for _, id := range targets {
			sh, err := r.GetSheet(ctx, id)
			if err != nil {
				return notFound("exam sheet", id, err)
			}
			if err := ruleTaskTemplateOwner(actor, sh); err != nil {
				return err
			}
			if err := ruleTaskTemplateKind(sh); err != nil {
				return err
			}
		}
		return r.InsertTask(ctx, t)
	})
	if err != nil {
		return Task{}, s.rejected("create_task", err)
	}
	return t, nil
}

func (s *Service) Task(ctx context.Context, id string) (Task, error) {
	t, err := s.store.GetTask(ctx, id)
	return t, notFound("task", id, err)
}

func (s *Service) TaskView(ctx context.Context, id string) (TaskView, error) {
	t, err := s.Task(ctx, id)
	if err != nil {
		return TaskView{}, err
	}
	return s.taskView(ctx, s.store, t)
}

func (s *Service) ListTasks(ctx context.Context, opts TaskListOpts) ([]TaskView, error) {
	tasks, err := s.store.ListTasks(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		tv, err := s.taskView(ctx, s.store, t)
		if err != nil {
			return nil, err
		}
		out = append(out, tv)
	}
	return out, nil
}

func (s *Service) UpdateTask(ctx context.Context, actor, id string, p TaskPatch) (Task, error) {
	var out Task
	err := s.store.InTx(ctx, func(r Repo) error {
		t, err := r.GetTask(ctx, id)
		if err != nil {
			return notFound("task", id, err)
		}
		if p.Type != nil && *p.Type != t.Type {
			if err := ruleTaskType(*p.Type); err != nil {
				return err
			}
			n, err := r.CountSolutions(ctx, t.ID)
			if err != nil {
				return err
			}
			if err := ruleSolutionCardinality(*p.Type, n); err != nil {
				return err
			}
			t.Type = *p.Type
		}
		if p.Question != nil {
			t.Question = *p.Question
		}
		if p.MaxGrade != nil {
			t.MaxGrade = p.MaxGrade
		}
		t.touch(actor, s.now())
		if err := r.UpdateTask(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, s.rejected("update_task", err)
}

func (s *Service) DeleteTask(ctx context.Context, id string) error {
	return notFound("task", id, s.store.DeleteTask(ctx, id))
}

func (s *Service) taskView(ctx context.Context, r Repo, t Task) (TaskView, error) {
	sols, err := r.ListSolutions(ctx, SolutionListOpts{TaskID: t.ID})
	if err != nil {
		return TaskView{}, err
	}
	svs := make([]SolutionView, 0, len(sols))
	for _, so := range sols {
		sv, err := s.solutionView(ctx, r, t.Type, so)
		if err != nil {
			return TaskView{}, err
		}
		svs = append(svs, sv)
	}
	return TaskView{Task: t, Solutions: svs}, nil
}

// ---- solutions ----

func (s *Service) CreateSolution(ctx context.Context, actor string, in NewSolution) (Solution, error) {
	points := 1
	if in.Points != nil {
		points = *in.Points
	}
	so := Solution{
		ID:           s.newID(),
		TaskID:       in.TaskID,
		ChoiceAnswer: in.ChoiceAnswer,
		TextAnswer:   in.TextAnswer,
		Points:       points,
		Stamp:        newStamp(actor, s.now()),
	}
	err := s.store.InTx(ctx, func(r Repo) error {
		t, err := r.GetTask(ctx, in.TaskID)
		if err != nil {
			return notFound("task", in.TaskID, err)
		}
		if err := ruleSolutionOwner(actor, t); err != nil {
			return err
		}
		n, err := r.CountSolutions(ctx, t.ID)
		if err != nil {
			return err
		}
		if err := ruleSolutionCardinality(t.Type, n+1); err != nil {
			return err
		}
		return r.InsertSolution(ctx, so)
	})
	if err != nil {
		return Solution{}, s.rejected("create_solution", err)
	}
	return so, nil
}

func (s *Service) Solution(ctx context.Context, id string) (Solution, error) {
	so, err := s.store.GetSolution(ctx, id)
	return so, notFound("solution", id, err)
}

func (s *Service) SolutionView(ctx context.Context, id string) (SolutionView, error) {
	so, err := s.Solution(ctx, id)
	if err != nil {
		return SolutionView{}, err
	}
	t, err := s.Task(ctx, so.TaskID)
	if err != nil {
		return SolutionView{}, err
	}
	return s.solutionView(ctx, s.store, t.Type, so)
}

func (s *Service) ListSolutions(ctx context.Context, opts SolutionListOpts) ([]SolutionView, error) {
	sols, err := s.store.ListSolutions(ctx, opts)
	if err != nil {
		return nil, err
	}
	types := map[string]TaskType{}
	out := make([]SolutionView, 0, len(sols))
	for _, so := range sols {
		typ, ok := types[so.TaskID]
		if !ok {
			t, err := s.Task(ctx, so.TaskID)
			if err != nil {
				return nil, err
			}
			typ, types[so.TaskID] = t.Type, t.Type
		}
		sv, err := s.solutionView(ctx, s.store, typ, so)
		if err != nil {
			return nil, err
		}
		out = append(out, sv)
	}
	return out, nil
}

func (s *Service) DeleteSolution(ctx context.Context, id string) error {
	return notFound("solution", id, s.store.DeleteSolution(ctx, id))
}

func (s *Service) solutionView(ctx context.Context, r Repo, t TaskType, so Solution) (SolutionView, error) {
	answers, err := r.ListAnswers(ctx, AnswerListOpts{SolutionID: so.ID})
	if err != nil {
		return SolutionView{}, err
	}
	avs := make([]AnswerView, 0, len(answers))
	for _, a := range answers {
		avs = append(avs, AnswerView{Answer: a, CalculatedGrade: s.CalculatedGrade(t, a, &so)})
	}
	return SolutionView{Solution: so, Answers: avs}, nil
}

// ---- answers ----

// SubmitAnswer validates and stores an answer, then forks or grows the
// actor's personal exam, all in one transaction. A lost uniqueness race is
// retried once; the retry normally resolves to the attach path or to an
// "already answered" rejection.
func (s *Service) SubmitAnswer(ctx context.Context, actor string, in NewAnswer) (AnswerView, error) {
	var out AnswerView
	attempt := func() error {
		return s.store.InTx(ctx, func(r Repo) error {
			v, err := s.submitAnswer(ctx, r, actor, in)
			out = v
			return err
		})
	}
	err := attempt()
	if errors.Is(err, ErrConflict) {
		s.log.Warn("answer hit integrity conflict, retrying",
			zap.String("user", actor), zap.String("task", in.TaskID), zap.Error(err))
		err = attempt()
	}
	if err != nil {
		return AnswerView{}, s.rejected("submit_answer", err)
	}
	return out, nil
}

func (s *Service) submitAnswer(ctx context.Context, r Repo, actor string, in NewAnswer) (AnswerView, error) {
	t, err := r.GetTask(ctx, in.TaskID)
	if err != nil {
		return AnswerView{}, notFound("task", in.TaskID, err)
	}
	var sol *Solution
	if in.SolutionID != nil && *in.SolutionID != "" {
		so, err := r.GetSolution(ctx, *in.SolutionID)
		if err != nil {
			return AnswerView{}, notFound("solution", *in.SolutionID, err)
		}
		sol = &so
	}
	if err := ruleAnswerSolutionMatch(t.ID, sol); err != nil {
		return AnswerView{}, err
	}

	wf := s.workflow(r)
	st, _, err := wf.state(ctx, actor)
	if err != nil {
		return AnswerView{}, err
	}
	inTemplate := true
	if st == stateNone {
		_, err := r.FirstTemplateWithTask(ctx, t.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			inTemplate = false
		case err != nil:
			return AnswerView{}, err
		}
	}
	if err := ruleAnswerOffered(st == stateGrowing, inTemplate); err != nil {
		return AnswerView{}, err
	}

	if sol != nil {
		already, err := r.AnswerExists(ctx, actor, sol.ID)
		if err != nil {
			return AnswerView{}, err
		}
		if err := ruleNoDoubleAnswer(already); err != nil {
			return AnswerView{}, err
		}
	}

	a := Answer{
		ID:           s.newID(),
		TaskID:       t.ID,
		ChoiceAnswer: in.ChoiceAnswer,
		TextAnswer:   in.TextAnswer,
		Submit:       in.Submit,
		Grade:        in.Grade,
		Stamp:        newStamp(actor, s.now()),
	}
	if sol != nil {
		a.SolutionID = &sol.ID
	}
	if err := r.InsertAnswer(ctx, a); err != nil {
		return AnswerView{}, err
	}
	if _, err := wf.apply(ctx, actor, t.ID); err != nil {
		return AnswerView{}, err
	}
	return AnswerView{Answer: a, CalculatedGrade: s.CalculatedGrade(t.Type, a, sol)}, nil
}

func (s *Service) Answer(ctx context.Context, id string) (Answer, error) {
	a, err := s.store.GetAnswer(ctx, id)
	return a, notFound("answer", id, err)
}

func (s *Service) AnswerView(ctx context.Context, id string) (AnswerView, error) {
	a, err := s.Answer(ctx, id)
	if err != nil {
		return AnswerView{}, err
	}
	return s.answerView(ctx, a)
}

func (s *Service) ListAnswers(ctx context.Context, opts AnswerListOpts) ([]AnswerView, error) {
	answers, err := s.store.ListAnswers(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]AnswerView, 0, len(answers))
	for _, a := range answers {
		v, err := s.answerView(ctx, a)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) DeleteAnswer(ctx context.Context, id string) error {
	return notFound("answer", id, s.store.DeleteAnswer(ctx, id))
}

func (s *Service) answerView(ctx context.Context, a Answer) (AnswerView, error) {
	t, err := s.Task(ctx, a.TaskID)
	if err != nil {
		return AnswerView{}, err
	}
	var sol *Solution
	if a.SolutionID != nil {
		so, err := s.Solution(ctx, *a.SolutionID)
		if err != nil {
			return AnswerView{}, err
		}
		sol = &so
	}
	return AnswerView{Answer: a, CalculatedGrade: s.CalculatedGrade(t.Type, a, sol)}, nil
}
