package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-sheets/internal/db"
	"github.com/mind-engage/mindengage-sheets/internal/exam"
)

func run(t *testing.T, dsn string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--db-driver", "sqlite", "--db-dsn", dsn}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrateUserAddGrade(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "sheets.db") + "?mode=rwc"

	out, err := run(t, dsn, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date")

	out, err = run(t, dsn, "useradd", "alice", "-p", "pw")
	require.NoError(t, err)
	aliceID := strings.Fields(out)[0]
	out, err = run(t, dsn, "useradd", "bob", "-p", "pw")
	require.NoError(t, err)
	bobID := strings.Fields(out)[0]

	_, err = run(t, dsn, "useradd", "bob", "-p", "pw")
	assert.Error(t, err, "duplicate username")
	_, err = run(t, dsn, "useradd", "carl")
	assert.Error(t, err, "password flag is required")

	// seed a graded answer through the service
	ctx := context.Background()
	h, err := db.Open(ctx, db.DriverSQLite, dsn)
	require.NoError(t, err)
	svc := exam.NewService(exam.NewSQLStore(h))
	tpl, err := svc.CreateSheet(ctx, aliceID, exam.NewSheet{Name: "Quiz"})
	require.NoError(t, err)
	task, err := svc.CreateTask(ctx, aliceID, exam.NewTask{SheetIDs: exam.IDList{tpl.Header().ID}, Type: exam.TrueFalse})
	require.NoError(t, err)
	pts := 4
	sol, err := svc.CreateSolution(ctx, aliceID, exam.NewSolution{TaskID: task.ID, ChoiceAnswer: true, Points: &pts})
	require.NoError(t, err)
	_, err = svc.SubmitAnswer(ctx, bobID, exam.NewAnswer{TaskID: task.ID, SolutionID: &sol.ID, ChoiceAnswer: true, Submit: true})
	require.NoError(t, err)
	require.NoError(t, h.Close())

	out, err = run(t, dsn, "grade", tpl.Header().ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "4", strings.TrimSpace(out))

	out, err = run(t, dsn, "grade", tpl.Header().ID, aliceID)
	require.NoError(t, err)
	assert.Equal(t, "0", strings.TrimSpace(out))

	_, err = run(t, dsn, "grade", "missing", "bob")
	assert.ErrorIs(t, err, exam.ErrNotFound)
}
