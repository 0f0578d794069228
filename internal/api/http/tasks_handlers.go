package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-sheets/internal/auth/middleware"
	"github.com/mind-engage/mindengage-sheets/internal/exam"
	"github.com/mind-engage/mindengage-sheets/internal/rbac"
)

// POST /tasks
func CreateTaskHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in exam.NewTask
		if !decode(w, r, &in) {
			return
		}
		t, err := svc.CreateTask(r.Context(), authmw.SubjectFromContext(r.Context()), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, exam.TaskView{Task: t, Solutions: []exam.SolutionView{}})
	}
}

// GET /tasks?exam_sheet=&creator=
func ListTasksHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list, err := svc.ListTasks(r.Context(), exam.TaskListOpts{
			SheetID:   strings.TrimSpace(q.Get("exam_sheet")),
			CreatorID: strings.TrimSpace(q.Get("creator")),
			Limit:     parseIntDefault(q.Get("limit"), 50),
			Offset:    parseIntDefault(q.Get("offset"), 0),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /tasks/{id}
func GetTaskHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.TaskView(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// PATCH /tasks/{id}
func UpdateTaskHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var p exam.TaskPatch
		if !decode(w, r, &p) {
			return
		}
		t, err := svc.Task(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if !mayMutate(r, t.CreatorID, rbac.TaskManageAny) {
			writeError(w, exam.ErrForbidden)
			return
		}
		if _, err := svc.UpdateTask(r.Context(), authmw.SubjectFromContext(r.Context()), id, p); err != nil {
			writeError(w, err)
			return
		}
		v, err := svc.TaskView(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// DELETE /tasks/{id}
func DeleteTaskHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		t, err := svc.Task(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if !mayMutate(r, t.CreatorID, rbac.TaskManageAny) {
			writeError(w, exam.ErrForbidden)
			return
		}
		if err := svc.DeleteTask(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
