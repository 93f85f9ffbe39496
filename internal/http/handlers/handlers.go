package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	mw "github.com/vitalab/vitalab-backend/internal/http/middleware"
	"github.com/vitalab/vitalab-backend/internal/service"
	"github.com/vitalab/vitalab-backend/pkg/config"
)

type Handlers struct {
	auth    service.AuthService
	users   service.UserService
	reports service.ReportService
	cfg     *config.Config
}

func New(
	auth service.AuthService,
	users service.UserService,
	reports service.ReportService,
	cfg *config.Config,
) *Handlers {
	return &Handlers{
		auth:    auth,
		users:   users,
		reports: reports,
		cfg:     cfg,
	}
}

func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	// Phone login
	r.Post("/login/send_code", h.SendCode)
	r.Post("/login/verify_code", h.VerifyCode)
	r.Post("/login/authenticate", h.Authenticate)
	r.Delete("/logout", h.Logout)

	// Health reports (authenticated)
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireJWT(h.cfg.Auth.JWTSecret))
		r.Get("/health_reports", h.ListReports)
		r.Get("/health_reports/{id}", h.GetReport)
		r.Delete("/health_reports/{id}", h.DeleteReport)
		r.Post("/health_reports/upload", h.UploadReport)
		r.Post("/health_reports/update_profile", h.UpdateProfile)
		r.Post("/health_reports/upload_avatar", h.UploadAvatar)
	})

	// Admin user management
	r.Route("/users", func(r chi.Router) {
		r.Use(mw.RequireJWT(h.cfg.Auth.JWTSecret))
		r.Use(mw.RequireAdmin)
		r.Get("/", h.ListUsers)
		r.Post("/", h.CreateUser)
		r.Get("/{id}", h.GetUser)
		r.Patch("/{id}", h.UpdateUser)
		r.Delete("/{id}", h.DeleteUser)
	})

	return r
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}
