package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-sheets/internal/auth/middleware"
	"github.com/mind-engage/mindengage-sheets/internal/exam"
	"github.com/mind-engage/mindengage-sheets/internal/rbac"
)

// POST /solutions
func CreateSolutionHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in exam.NewSolution
		if !decode(w, r, &in) {
			return
		}
		so, err := svc.CreateSolution(r.Context(), authmw.SubjectFromContext(r.Context()), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, exam.SolutionView{Solution: so, Answers: []exam.AnswerView{}})
	}
}

// GET /solutions?task=
func ListSolutionsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list, err := svc.ListSolutions(r.Context(), exam.SolutionListOpts{
			TaskID: strings.TrimSpace(q.Get("task")),
			Limit:  parseIntDefault(q.Get("limit"), 50),
			Offset: parseIntDefault(q.Get("offset"), 0),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /solutions/{id}
func GetSolutionHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.SolutionView(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// DELETE /solutions/{id}
func DeleteSolutionHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		so, err := svc.Solution(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if !mayMutate(r, so.CreatorID, rbac.SolutionManageAny) {
			writeError(w, exam.ErrForbidden)
			return
		}
		if err := svc.DeleteSolution(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
