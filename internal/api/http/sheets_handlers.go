package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-sheets/internal/auth/middleware"
	"github.com/mind-engage/mindengage-sheets/internal/exam"
	"github.com/mind-engage/mindengage-sheets/internal/rbac"
)

// POST /exam_sheets
func CreateSheetHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in exam.NewSheet
		if !decode(w, r, &in) {
			return
		}
		sub := authmw.SubjectFromContext(r.Context())
		sh, err := svc.CreateSheet(r.Context(), sub, in)
		if err != nil {
			writeError(w, err)
			return
		}
		v, err := svc.SheetView(r.Context(), sub, sh.Header().ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	}
}

// GET /exam_sheets, /exam_sheets/exams, /exam_sheets/templates
// kind pins the template filter for the derived views; nil reads ?template=.
func ListSheetsHandler(svc *exam.Service, kind *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := exam.ListOpts{
			CreatorID: strings.TrimSpace(q.Get("creator")),
			Template:  kind,
			Ordering:  q.Get("ordering"),
			Limit:     parseIntDefault(q.Get("limit"), 50),
			Offset:    parseIntDefault(q.Get("offset"), 0),
		}
		if kind == nil {
			opts.Template = parseBool(q.Get("template"))
		}
		list, err := svc.ListSheets(r.Context(), authmw.SubjectFromContext(r.Context()), opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /exam_sheets/{id}
func GetSheetHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.SheetView(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// PATCH /exam_sheets/{id}
func UpdateSheetHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var p exam.SheetPatch
		if !decode(w, r, &p) {
			return
		}
		sh, err := svc.Sheet(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if !mayMutate(r, sh.Header().CreatorID, rbac.SheetManageAny) {
			writeError(w, exam.ErrForbidden)
			return
		}
		sub := authmw.SubjectFromContext(r.Context())
		if _, err := svc.UpdateSheet(r.Context(), sub, id, p); err != nil {
			writeError(w, err)
			return
		}
		v, err := svc.SheetView(r.Context(), sub, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// DELETE /exam_sheets/{id}
func DeleteSheetHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sh, err := svc.Sheet(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if !mayMutate(r, sh.Header().CreatorID, rbac.SheetManageAny) {
			writeError(w, exam.ErrForbidden)
			return
		}
		if err := svc.DeleteSheet(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type gradeResponse struct {
	ExamSheet  string `json:"exam_sheet"`
	User       string `json:"user"`
	FinalGrade int    `json:"final_grade"`
}

// GET /exam_sheets/{id}/grades/{userID}
func UserGradeHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, user := chi.URLParam(r, "id"), chi.URLParam(r, "userID")
		g, err := svc.UserFinalGrade(r.Context(), id, user)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, gradeResponse{ExamSheet: id, User: user, FinalGrade: g})
	}
}
