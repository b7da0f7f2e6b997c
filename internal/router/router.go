package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-identity-service/internal/config"
	"go-identity-service/internal/handler"
	"go-identity-service/internal/middleware"
)

func New(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	authHandler *handler.AuthHandler,
	adminHandler *handler.AdminHandler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(authMiddleware.Authenticate)
	r.Use(authMiddleware.Enforce)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", authHandler.Register)
			auth.Post("/login", authHandler.Login)
			auth.Post("/otp/generate", authHandler.GenerateOTP)
			auth.Post("/otp/verify", authHandler.VerifyOTP)
			auth.Post("/password/forgot", authHandler.ForgotPassword)
			auth.Post("/password/verify-otp", authHandler.VerifyResetOTP)
			auth.Post("/password/update", authHandler.UpdatePassword)
			auth.Get("/me", authHandler.Me)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Get("/users", adminHandler.ListUsers)
			admin.Post("/users", adminHandler.CreateUser)
		})
	})

	return r
}
