package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-sheets/internal/db"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// SQLStore implements Store on database/sql. Queries use $n placeholders,
// which both the modernc sqlite and pgx drivers accept.
type SQLStore struct {
	h *sql.DB
	q querier
}

func NewSQLStore(h *sql.DB) *SQLStore {
	return &SQLStore{h: h, q: h}
}

// InTx runs fn against a transaction-bound store. Nested calls reuse the
// open transaction.
func (s *SQLStore) InTx(ctx context.Context, fn func(Repo) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	return db.WithTx(ctx, s.h, nil, func(tx *sql.Tx) error {
		return fn(&SQLStore{h: s.h, q: tx})
	})
}

// ---- helpers ----

func ms(t time.Time) int64 { return t.UnixMilli() }

func fromMS(v int64) time.Time { return time.UnixMilli(v).UTC() }

func nullStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}

func mustAffect(res sql.Result, err error) error {
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// page appends LIMIT/OFFSET; OFFSET is only valid together with LIMIT.
func page(q string, args []any, limit, offset int) (string, []any) {
	if limit <= 0 {
		return q, args
	}
	args = append(args, limit, offset)
	return q + ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args)), args
}

const stampCols = `creator_id, editor_id, created_at, edited_at`

type stampRow struct {
	creator         string
	editor          sql.NullString
	created, edited int64
}

func (r *stampRow) dest() []any { return []any{&r.creator, &r.editor, &r.created, &r.edited} }

func (r stampRow) stamp() Stamp {
	return Stamp{CreatorID: r.creator, EditorID: strPtr(r.editor), Created: fromMS(r.created), Edited: fromMS(r.edited)}
}

func stampArgs(st Stamp) []any {
	return []any{st.CreatorID, nullStr(st.EditorID), ms(st.Created), ms(st.Edited)}
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ---- exam sheets ----

const sheetCols = `id, name, template, ` + stampCols

func scanSheet(sc scanner) (ExamSheet, error) {
	var (
		h        SheetHeader
		template bool
		st       stampRow
	)
	if err := sc.Scan(append([]any{&h.ID, &h.Name, &template}, st.dest()...)...); err != nil {
		return nil, err
	}
	h.Stamp = st.stamp()
	if template {
		return Template{h}, nil
	}
	return Instance{h}, nil
}

func withTaskIDs(s ExamSheet, ids []string) ExamSheet {
	switch v := s.(type) {
	case Template:
		v.TaskIDs = ids
		return v
	case Instance:
		v.TaskIDs = ids
		return v
	}
	return s
}

func (s *SQLStore) sheetTaskIDs(ctx context.Context, sheetID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT st.task_id FROM exam_sheet_tasks st JOIN tasks t ON t.id = st.task_id
		  WHERE st.sheet_id=$1 ORDER BY t.created_at, t.id`, sheetID)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

func (s *SQLStore) linkAll(ctx context.Context, sheetID string, taskIDs []string) error {
	for _, tid := range taskIDs {
		if err := s.LinkTask(ctx, sheetID, tid); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) InsertSheet(ctx context.Context, sh ExamSheet) error {
	h := sh.Header()
	args := append([]any{h.ID, h.Name, sh.IsTemplate()}, stampArgs(h.Stamp)...)
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO exam_sheets (`+sheetCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`, args...); err != nil {
		return mapErr(err)
	}
	return s.linkAll(ctx, h.ID, h.TaskIDs)
}

func (s *SQLStore) InsertInstanceIfAbsent(ctx context.Context, in Instance) (bool, error) {
	args := append([]any{in.ID, in.Name}, stampArgs(in.Stamp)...)
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO exam_sheets (`+sheetCols+`) VALUES ($1,$2,FALSE,$3,$4,$5,$6)
		 ON CONFLICT (creator_id) WHERE template = FALSE DO NOTHING`, args...)
	if err != nil {
		return false, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	return true, s.linkAll(ctx, in.ID, in.TaskIDs)
}

func (s *SQLStore) GetSheet(ctx context.Context, id string) (ExamSheet, error) {
	sh, err := scanSheet(s.q.QueryRowContext(ctx, `SELECT `+sheetCols+` FROM exam_sheets WHERE id=$1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	ids, err := s.sheetTaskIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return withTaskIDs(sh, ids), nil
}

func (s *SQLStore) ListSheets(ctx context.Context, opts ListOpts) ([]ExamSheet, error) {
	q := `SELECT ` + sheetCols + ` FROM exam_sheets WHERE 1=1`
	var args []any
	if opts.CreatorID != "" {
		args = append(args, opts.CreatorID)
		q += ` AND creator_id=$` + strconv.Itoa(len(args))
	}
	if opts.Template != nil {
		args = append(args, *opts.Template)
		q += ` AND template=$` + strconv.Itoa(len(args))
	}
	q += ` ORDER BY ` + sheetOrderBy(opts.Ordering)
	q, args = page(q, args, opts.Limit, opts.Offset)

	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var out []ExamSheet
	for rows.Next() {
		sh, err := scanSheet(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, sh)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// rows must be closed first: sqlite runs on a single connection
	for i, sh := range out {
		ids, err := s.sheetTaskIDs(ctx, sh.Header().ID)
		if err != nil {
			return nil, err
		}
		out[i] = withTaskIDs(sh, ids)
	}
	return out, nil
}

func sheetOrderBy(ordering string) string {
	field, dir := strings.TrimPrefix(ordering, "-"), "ASC"
	if strings.HasPrefix(ordering, "-") {
		dir = "DESC"
	}
	col, ok := sheetOrderings[field]
	if !ok {
		return "created_at ASC, id ASC"
	}
	return col + " " + dir + ", id ASC"
}

func (s *SQLStore) UpdateSheet(ctx context.Context, h SheetHeader) error {
	return mustAffect(s.q.ExecContext(ctx,
		`UPDATE exam_sheets SET name=$1, editor_id=$2, edited_at=$3 WHERE id=$4`,
		h.Name, nullStr(h.EditorID), ms(h.Edited), h.ID))
}

func (s *SQLStore) DeleteSheet(ctx context.Context, id string) error {
	return mustAffect(s.q.ExecContext(ctx, `DELETE FROM exam_sheets WHERE id=$1`, id))
}

func (s *SQLStore) InstanceOf(ctx context.Context, creatorID string) (Instance, error) {
	sh, err := scanSheet(s.q.QueryRowContext(ctx,
		`SELECT `+sheetCols+` FROM exam_sheets WHERE creator_id=$1 AND template = FALSE`, creatorID))
	if err != nil {
		return Instance{}, mapErr(err)
	}
	in, ok := sh.(Instance)
	if !ok {
		return Instance{}, ErrNotFound
	}
	if in.TaskIDs, err = s.sheetTaskIDs(ctx, in.ID); err != nil {
		return Instance{}, err
	}
	return in, nil
}

func (s *SQLStore) FirstTemplateWithTask(ctx context.Context, taskID string) (Template, error) {
	sh, err := scanSheet(s.q.QueryRowContext(ctx,
		`SELECT s.id, s.name, s.template, s.creator_id, s.editor_id, s.created_at, s.edited_at
		   FROM exam_sheets s
		   JOIN exam_sheet_tasks st ON st.sheet_id = s.id
		  WHERE st.task_id=$1 AND s.template = TRUE
		  ORDER BY s.created_at, s.id
		  LIMIT 1`, taskID))
	if err != nil {
		return Template{}, mapErr(err)
	}
	t, ok := sh.(Template)
	if !ok {
		return Template{}, ErrNotFound
	}
	if t.TaskIDs, err = s.sheetTaskIDs(ctx, t.ID); err != nil {
		return Template{}, err
	}
	return t, nil
}

func (s *SQLStore) LinkTask(ctx context.Context, sheetID, taskID string) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO exam_sheet_tasks (sheet_id, task_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
		sheetID, taskID)
	return mapErr(err)
}

// ---- tasks ----

const taskCols = `id, type, question, max_grade, ` + stampCols

func scanTask(sc scanner) (Task, error) {
	var (
		t   Task
		typ string
		mg  sql.NullInt64
		st  stampRow
	)
	if err := sc.Scan(append([]any{&t.ID, &typ, &t.Question, &mg}, st.dest()...)...); err != nil {
		return Task{}, err
	}
	t.Type = TaskType(typ)
	t.MaxGrade = intPtr(mg)
	t.Stamp = st.stamp()
	return t, nil
}

func (s *SQLStore) taskSheetIDs(ctx context.Context, taskID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT st.sheet_id FROM exam_sheet_tasks st JOIN exam_sheets s ON s.id = st.sheet_id
		  WHERE st.task_id=$1 ORDER BY s.created_at, s.id`, taskID)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

func (s *SQLStore) InsertTask(ctx context.Context, t Task) error {
	args := append([]any{t.ID, string(t.Type), t.Question, nullInt(t.MaxGrade)}, stampArgs(t.Stamp)...)
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO tasks (`+taskCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, args...); err != nil {
		return mapErr(err)
	}
	for _, sid := range t.SheetIDs {
		if err := s.LinkTask(ctx, sid, t.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) GetTask(ctx context.Context, id string) (Task, error) {
	t, err := scanTask(s.q.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=$1`, id))
	if err != nil {
		return Task{}, mapErr(err)
	}
	if t.SheetIDs, err = s.taskSheetIDs(ctx, id); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *SQLStore) ListTasks(ctx context.Context, opts TaskListOpts) ([]Task, error) {
	q := `SELECT t.id, t.type, t.question, t.max_grade, t.creator_id, t.editor_id, t.created_at, t.edited_at FROM tasks t`
	var args []any
	if opts.SheetID != "" {
		args = append(args, opts.SheetID)
		q += ` JOIN exam_sheet_tasks st ON st.task_id = t.id AND st.sheet_id=$1`
	}
	q += ` WHERE 1=1`
	if opts.CreatorID != "" {
		args = append(args, opts.CreatorID)
		q += ` AND t.creator_id=$` + strconv.Itoa(len(args))
	}
	q += ` ORDER BY t.created_at, t.id`
	q, args = page(q, args, opts.Limit, opts.Offset)

	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].SheetIDs, err = s.taskSheetIDs(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLStore) UpdateTask(ctx context.Context, t Task) error {
	return mustAffect(s.q.ExecContext(ctx,
		`UPDATE tasks SET type=$1, question=$2, max_grade=$3, editor_id=$4, edited_at=$5 WHERE id=$6`,
		string(t.Type), t.Question, nullInt(t.MaxGrade), nullStr(t.EditorID), ms(t.Edited), t.ID))
}

func (s *SQLStore) DeleteTask(ctx context.Context, id string) error {
	return mustAffect(s.q.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, id))
}

// ---- solutions ----

const solutionCols = `id, task_id, choice_answer, text_answer, points, ` + stampCols

func scanSolution(sc scanner) (Solution, error) {
	var (
		so   Solution
		text sql.NullString
		st   stampRow
	)
	if err := sc.Scan(append([]any{&so.ID, &so.TaskID, &so.ChoiceAnswer, &text, &so.Points}, st.dest()...)...); err != nil {
		return Solution{}, err
	}
	so.TextAnswer = strPtr(text)
	so.Stamp = st.stamp()
	return so, nil
}

func (s *SQLStore) InsertSolution(ctx context.Context, so Solution) error {
	args := append([]any{so.ID, so.TaskID, so.ChoiceAnswer, nullStr(so.TextAnswer), so.Points}, stampArgs(so.Stamp)...)
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO solutions (`+solutionCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, args...)
	return mapErr(err)
}

func (s *SQLStore) GetSolution(ctx context.Context, id string) (Solution, error) {
	so, err := scanSolution(s.q.QueryRowContext(ctx, `SELECT `+solutionCols+` FROM solutions WHERE id=$1`, id))
	return so, mapErr(err)
}

func (s *SQLStore) ListSolutions(ctx context.Context, opts SolutionListOpts) ([]Solution, error) {
	q := `SELECT ` + solutionCols + ` FROM solutions WHERE 1=1`
	var args []any
	if opts.TaskID != "" {
		args = append(args, opts.TaskID)
		q += ` AND task_id=$1`
	}
	q += ` ORDER BY created_at, id`
	q, args = page(q, args, opts.Limit, opts.Offset)

	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Solution
	for rows.Next() {
		so, err := scanSolution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, so)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountSolutions(ctx context.Context, taskID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM solutions WHERE task_id=$1`, taskID).Scan(&n)
	return n, err
}

func (s *SQLStore) DeleteSolution(ctx context.Context, id string) error {
	return mustAffect(s.q.ExecContext(ctx, `DELETE FROM solutions WHERE id=$1`, id))
}

// ---- answers ----

const answerCols = `id, task_id, solution_id, choice_answer, text_answer, submit, grade, ` + stampCols

func answerDest(a *Answer, sol, text *sql.NullString, grade *sql.NullInt64, st *stampRow) []any {
	return append([]any{&a.ID, &a.TaskID, sol, &a.ChoiceAnswer, text, &a.Submit, grade}, st.dest()...)
}

func scanAnswer(sc scanner) (Answer, error) {
	var (
		a         Answer
		sol, text sql.NullString
		grade     sql.NullInt64
		st        stampRow
	)
	if err := sc.Scan(answerDest(&a, &sol, &text, &grade, &st)...); err != nil {
		return Answer{}, err
	}
	a.SolutionID = strPtr(sol)
	a.TextAnswer = strPtr(text)
	a.Grade = intPtr(grade)
	a.Stamp = st.stamp()
	return a, nil
}

func (s *SQLStore) InsertAnswer(ctx context.Context, a Answer) error {
	args := append([]any{a.ID, a.TaskID, nullStr(a.SolutionID), a.ChoiceAnswer, nullStr(a.TextAnswer), a.Submit, nullInt(a.Grade)},
		stampArgs(a.Stamp)...)
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO answers (`+answerCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, args...)
	return mapErr(err)
}

func (s *SQLStore) GetAnswer(ctx context.Context, id string) (Answer, error) {
	a, err := scanAnswer(s.q.QueryRowContext(ctx, `SELECT `+answerCols+` FROM answers WHERE id=$1`, id))
	return a, mapErr(err)
}

func (s *SQLStore) ListAnswers(ctx context.Context, opts AnswerListOpts) ([]Answer, error) {
	q := `SELECT ` + answerCols + ` FROM answers WHERE 1=1`
	var args []any
	if opts.TaskID != "" {
		args = append(args, opts.TaskID)
		q += ` AND task_id=$` + strconv.Itoa(len(args))
	}
	if opts.CreatorID != "" {
		args = append(args, opts.CreatorID)
		q += ` AND creator_id=$` + strconv.Itoa(len(args))
	}
	if opts.SolutionID != "" {
		args = append(args, opts.SolutionID)
		q += ` AND solution_id=$` + strconv.Itoa(len(args))
	}
	q += ` ORDER BY created_at, id`
	q, args = page(q, args, opts.Limit, opts.Offset)

	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) AnswerExists(ctx context.Context, creatorID, solutionID string) (bool, error) {
	var one int
	err := s.q.QueryRowContext(ctx,
		`SELECT 1 FROM answers WHERE creator_id=$1 AND solution_id=$2 LIMIT 1`, creatorID, solutionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLStore) DeleteAnswer(ctx context.Context, id string) error {
	return mustAffect(s.q.ExecContext(ctx, `DELETE FROM answers WHERE id=$1`, id))
}

func (s *SQLStore) GradedAnswers(ctx context.Context, sheetID, creatorID string) ([]GradedAnswer, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT a.id, a.task_id, a.solution_id, a.choice_answer, a.text_answer, a.submit, a.grade,
		       a.creator_id, a.editor_id, a.created_at, a.edited_at,
		       t.type, so.id, so.task_id, so.choice_answer, so.points
		  FROM answers a
		  JOIN exam_sheet_tasks st ON st.task_id = a.task_id AND st.sheet_id = $1
		  JOIN tasks t ON t.id = a.task_id
		  LEFT JOIN solutions so ON so.id = a.solution_id
		 WHERE a.creator_id = $2
		 ORDER BY a.created_at, a.id`, sheetID, creatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GradedAnswer
	for rows.Next() {
		var (
			g            GradedAnswer
			sol, text    sql.NullString
			grade        sql.NullInt64
			st           stampRow
			typ          string
			soID, soTask sql.NullString
			soChoice     sql.NullBool
			soPoints     sql.NullInt64
		)
		dest := append(answerDest(&g.Answer, &sol, &text, &grade, &st), &typ, &soID, &soTask, &soChoice, &soPoints)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		g.Answer.SolutionID = strPtr(sol)
		g.Answer.TextAnswer = strPtr(text)
		g.Answer.Grade = intPtr(grade)
		g.Answer.Stamp = st.stamp()
		g.TaskType = TaskType(typ)
		if soID.Valid {
			g.Solution = &Solution{ID: soID.String, TaskID: soTask.String, ChoiceAnswer: soChoice.Bool, Points: int(soPoints.Int64)}
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
