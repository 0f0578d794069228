package exam

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-sheets/internal/db"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	h, err := db.Open(context.Background(), db.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	for _, u := range []string{"alice", "bob", "carol"} {
		_, err := h.Exec(`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1,$2,'x','user',0)`, u, u)
		require.NoError(t, err)
	}
	return NewSQLStore(h)
}

var t0 = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func at(min int) Stamp { return newStamp("alice", t0.Add(time.Duration(min)*time.Minute)) }

func TestSQLStoreSheetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertSheet(ctx, Template{SheetHeader{ID: "tpl", Name: "Algebra", Stamp: at(0)}}))
	require.NoError(t, s.InsertTask(ctx, Task{ID: "k2", SheetIDs: []string{"tpl"}, Type: TrueFalse, Stamp: at(2)}))
	require.NoError(t, s.InsertTask(ctx, Task{ID: "k1", SheetIDs: []string{"tpl"}, Type: Text, Stamp: at(1)}))

	sh, err := s.GetSheet(ctx, "tpl")
	require.NoError(t, err)
	tpl, ok := sh.(Template)
	require.True(t, ok, "want Template, got %T", sh)
	assert.Equal(t, "Algebra", tpl.Name)
	assert.Equal(t, []string{"k1", "k2"}, tpl.TaskIDs)
	assert.Equal(t, t0, tpl.Created)
	assert.Nil(t, tpl.EditorID)

	h := tpl.SheetHeader
	h.Name = "Algebra I"
	h.touch("bob", t0.Add(time.Hour))
	require.NoError(t, s.UpdateSheet(ctx, h))
	sh, err = s.GetSheet(ctx, "tpl")
	require.NoError(t, err)
	assert.Equal(t, "Algebra I", sh.Header().Name)
	require.NotNil(t, sh.Header().EditorID)
	assert.Equal(t, "bob", *sh.Header().EditorID)

	_, err = s.GetSheet(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteSheet(ctx, "missing"), ErrNotFound)
}

func TestSQLStoreInstanceIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertSheet(ctx, Template{SheetHeader{ID: "tpl", Name: "A", Stamp: at(0)}}))
	require.NoError(t, s.InsertTask(ctx, Task{ID: "k", SheetIDs: []string{"tpl"}, Type: Text, Stamp: at(1)}))

	bob := Stamp{CreatorID: "bob", Created: t0, Edited: t0}
	created, err := s.InsertInstanceIfAbsent(ctx, Instance{SheetHeader{ID: "i1", Name: "A", TaskIDs: []string{"k"}, Stamp: bob}})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.InsertInstanceIfAbsent(ctx, Instance{SheetHeader{ID: "i2", Name: "A", Stamp: bob}})
	require.NoError(t, err)
	assert.False(t, created)

	in, err := s.InstanceOf(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "i1", in.ID)
	assert.Equal(t, []string{"k"}, in.TaskIDs)

	_, err = s.InstanceOf(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.InsertSheet(ctx, Instance{SheetHeader{ID: "i3", Name: "B", Stamp: bob}})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSQLStoreLinkTaskIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertSheet(ctx, Template{SheetHeader{ID: "tpl", Name: "A", Stamp: at(0)}}))
	require.NoError(t, s.InsertTask(ctx, Task{ID: "k", SheetIDs: []string{"tpl"}, Type: Text, Stamp: at(1)}))

	require.NoError(t, s.LinkTask(ctx, "tpl", "k"))
	require.NoError(t, s.LinkTask(ctx, "tpl", "k"))
	task, err := s.GetTask(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []string{"tpl"}, task.SheetIDs)
}

func TestSQLStoreFirstTemplateWithTask(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertSheet(ctx, Template{SheetHeader{ID: "newer", Name: "B", Stamp: at(5)}}))
	require.NoError(t, s.InsertSheet(ctx, Template{SheetHeader{ID: "older", Name: "A", Stamp: at(0)}}))
	require.NoError(t, s.InsertTask(ctx, Task{ID: "k", SheetIDs: []string{"newer", "older"}, Type: Text, Stamp: at(6)}))
	require.NoError(t, s.InsertTask(ctx, Task{ID: "lonely", SheetIDs: nil, Type: Text, Stamp: at(7)}))

	tpl, err := s.FirstTemplateWithTask(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "older", tpl.ID)
	assert.Equal(t, []string{"k"}, tpl.TaskIDs)

	_, err = s.FirstTemplateWithTask(ctx, "lonely")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreListSheets(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertSheet(ctx, Template{SheetHeader{ID: "a", Name: "Alpha", Stamp: at(0)}}))
	require.NoError(t, s.InsertSheet(ctx, Template{SheetHeader{ID: "c", Name: "Gamma", Stamp: at(1)}}))
	require.NoError(t, s.InsertSheet(ctx, Instance{SheetHeader{ID: "b", Name: "Beta", Stamp: Stamp{CreatorID: "bob", Created: t0, Edited: t0}}}))

	ids := func(sheets []ExamSheet) []string {
		var out []string
		for _, sh := range sheets {
			out = append(out, sh.Header().ID)
		}
		return out
	}

	all, err := s.ListSheets(ctx, ListOpts{Ordering: "-name"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids(all))

	yes := true
	tpls, err := s.ListSheets(ctx, ListOpts{Template: &yes, Ordering: "name"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(tpls))

	mine, err := s.ListSheets(ctx, ListOpts{CreatorID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(mine))

	paged, err := s.ListSheets(ctx, ListOpts{Ordering: "name", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(paged))
}

func TestSQLStoreAnswersAndGrading(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InsertSheet(ctx, Template{SheetHeader{ID: "tpl", Name: "A", Stamp: at(0)}}))
	require.NoError(t, s.InsertSheet(ctx, Template{SheetHeader{ID: "other", Name: "B", Stamp: at(0)}}))
	require.NoError(t, s.InsertTask(ctx, Task{ID: "k1", SheetIDs: []string{"tpl"}, Type: TrueFalse, Stamp: at(1)}))
	require.NoError(t, s.InsertTask(ctx, Task{ID: "k2", SheetIDs: []string{"other"}, Type: TrueFalse, Stamp: at(2)}))
	require.NoError(t, s.InsertSolution(ctx, Solution{ID: "s1", TaskID: "k1", ChoiceAnswer: true, Points: 5, Stamp: at(3)}))
	require.NoError(t, s.InsertSolution(ctx, Solution{ID: "s2", TaskID: "k2", ChoiceAnswer: true, Points: 2, Stamp: at(3)}))

	n, err := s.CountSolutions(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sid1, sid2 := "s1", "s2"
	bob := func(min int) Stamp { return newStamp("bob", t0.Add(time.Duration(min)*time.Minute)) }
	require.NoError(t, s.InsertAnswer(ctx, Answer{ID: "a1", TaskID: "k1", SolutionID: &sid1, ChoiceAnswer: true, Submit: true, Stamp: bob(4)}))
	require.NoError(t, s.InsertAnswer(ctx, Answer{ID: "a2", TaskID: "k2", SolutionID: &sid2, ChoiceAnswer: true, Submit: true, Stamp: bob(5)}))
	require.NoError(t, s.InsertAnswer(ctx, Answer{ID: "a3", TaskID: "k1", Submit: true, Stamp: bob(6)}))

	err = s.InsertAnswer(ctx, Answer{ID: "a4", TaskID: "k1", SolutionID: &sid1, Stamp: bob(7)})
	assert.ErrorIs(t, err, ErrConflict)

	ok, err := s.AnswerExists(ctx, "bob", "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.AnswerExists(ctx, "carol", "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	graded, err := s.GradedAnswers(ctx, "tpl", "bob")
	require.NoError(t, err)
	require.Len(t, graded, 2)
	assert.Equal(t, "a1", graded[0].Answer.ID)
	assert.Equal(t, TrueFalse, graded[0].TaskType)
	require.NotNil(t, graded[0].Solution)
	assert.Equal(t, 5, graded[0].Solution.Points)
	assert.Equal(t, "a3", graded[1].Answer.ID)
	assert.Nil(t, graded[1].Solution)

	none, err := s.GradedAnswers(ctx, "tpl", "carol")
	require.NoError(t, err)
	assert.Empty(t, none)

	byTask, err := s.ListAnswers(ctx, AnswerListOpts{TaskID: "k1", CreatorID: "bob"})
	require.NoError(t, err)
	assert.Len(t, byTask, 2)

	require.NoError(t, s.DeleteTask(ctx, "k1"))
	_, err = s.GetAnswer(ctx, "a1")
	assert.True(t, errors.Is(err, ErrNotFound), "answers cascade with their task")
}

func TestSQLStoreInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(r Repo) error {
		if err := r.InsertSheet(ctx, Template{SheetHeader{ID: "tpl", Name: "A", Stamp: at(0)}}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetSheet(ctx, "tpl")
	assert.ErrorIs(t, err, ErrNotFound)
}
