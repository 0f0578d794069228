package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	authmw "github.com/mind-engage/mindengage-sheets/internal/auth/middleware"
	"github.com/mind-engage/mindengage-sheets/internal/exam"
	"github.com/mind-engage/mindengage-sheets/internal/rbac"
	"github.com/mind-engage/mindengage-sheets/internal/users"
)

type Deps struct {
	Sheets *exam.Service
	Users  *users.Store
	Auth   *authmw.AuthService

	CORSOrigins        []string
	EnableRegistration bool
	// AllowClaimFallback keeps the token's role when the users table cannot be read.
	AllowClaimFallback bool
	// AccessLog toggles chi's request logger.
	AccessLog bool
	Ready     func() error
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	if d.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer, middleware.Timeout(30*time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", authmw.LoginHandler(d.Auth, d.Users))
	if d.EnableRegistration {
		r.Post("/auth/register", authmw.RegisterHandler(d.Auth, d.Users))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(200)
	})

	// Protected API (JWT → stored role → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(d.Auth), authmw.AttachRoleFromDB(d.Users, d.AllowClaimFallback))

		yes, no := true, false
		pr.Route("/exam_sheets", func(sr chi.Router) {
			sr.With(rbac.Require(rbac.SheetCreate)).Post("/", CreateSheetHandler(d.Sheets))
			sr.With(rbac.Require(rbac.SheetView)).Get("/", ListSheetsHandler(d.Sheets, nil))
			sr.With(rbac.Require(rbac.SheetView)).Get("/exams", ListSheetsHandler(d.Sheets, &no))
			sr.With(rbac.Require(rbac.SheetView)).Get("/templates", ListSheetsHandler(d.Sheets, &yes))
			sr.With(rbac.Require(rbac.SheetView)).Get("/{id}", GetSheetHandler(d.Sheets))
			sr.Patch("/{id}", UpdateSheetHandler(d.Sheets))
			sr.Delete("/{id}", DeleteSheetHandler(d.Sheets))
			sr.With(rbac.Require(rbac.GradeView)).Get("/{id}/grades/{userID}", UserGradeHandler(d.Sheets))
		})

		pr.Route("/tasks", func(tr chi.Router) {
			tr.With(rbac.Require(rbac.TaskCreate)).Post("/", CreateTaskHandler(d.Sheets))
			tr.With(rbac.Require(rbac.TaskView)).Get("/", ListTasksHandler(d.Sheets))
			tr.With(rbac.Require(rbac.TaskView)).Get("/{id}", GetTaskHandler(d.Sheets))
			tr.Patch("/{id}", UpdateTaskHandler(d.Sheets))
			tr.Delete("/{id}", DeleteTaskHandler(d.Sheets))
		})

		pr.Route("/solutions", func(so chi.Router) {
			so.With(rbac.Require(rbac.SolutionCreate)).Post("/", CreateSolutionHandler(d.Sheets))
			so.With(rbac.Require(rbac.SolutionView)).Get("/", ListSolutionsHandler(d.Sheets))
			so.With(rbac.Require(rbac.SolutionView)).Get("/{id}", GetSolutionHandler(d.Sheets))
			so.Delete("/{id}", DeleteSolutionHandler(d.Sheets))
		})

		pr.Route("/answers", func(ar chi.Router) {
			ar.With(rbac.Require(rbac.AnswerCreate)).Post("/", SubmitAnswerHandler(d.Sheets))
			ar.With(rbac.Require(rbac.AnswerView)).Get("/", ListAnswersHandler(d.Sheets))
			ar.With(rbac.Require(rbac.AnswerView)).Get("/{id}", GetAnswerHandler(d.Sheets))
			ar.Delete("/{id}", DeleteAnswerHandler(d.Sheets))
		})

		pr.With(rbac.Require(rbac.UsersList)).Get("/users", ListUsersHandler(d.Users))
		pr.With(rbac.Require(rbac.ChangePassword)).Post("/users/change-password", ChangePasswordHandler(d.Users))
	})

	return r
}
