package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-sheets/internal/auth/middleware"
	"github.com/mind-engage/mindengage-sheets/internal/exam"
	"github.com/mind-engage/mindengage-sheets/internal/rbac"
)

// POST /answers
// The first answer of a user forks a template into their personal exam.
func SubmitAnswerHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in exam.NewAnswer
		if !decode(w, r, &in) {
			return
		}
		v, err := svc.SubmitAnswer(r.Context(), authmw.SubjectFromContext(r.Context()), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	}
}

// GET /answers?task=&creator=
func ListAnswersHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list, err := svc.ListAnswers(r.Context(), exam.AnswerListOpts{
			TaskID:    strings.TrimSpace(q.Get("task")),
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

// GET /answers/{id}
func GetAnswerHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.AnswerView(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// DELETE /answers/{id}
func DeleteAnswerHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		a, err := svc.Answer(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if !mayMutate(r, a.CreatorID, rbac.AnswerManageAny) {
			writeError(w, exam.ErrForbidden)
			return
		}
		if err := svc.DeleteAnswer(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
