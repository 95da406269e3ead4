package routes

import (
	"net/http"

	"github.com/hopegrove/hopegrove/internal/app"
	"github.com/hopegrove/hopegrove/internal/handler"
	"github.com/hopegrove/hopegrove/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	auth := handler.NewAuthHandler(app.AuthService, app.Cfg)
	availability := handler.NewAvailabilityHandler(app.UserRepository)
	share := handler.NewShareHandler(app.ShareService)
	health := handler.NewHealthHandler(app.DB)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", health.Health)

	// Signup form helpers
	mux.HandleFunc("GET /api/check-email", availability.CheckEmail)
	mux.HandleFunc("GET /api/check-username", availability.CheckUsername)

	// Authentication flow (credential endpoints are rate limited)
	rateLimiter := middleware.RateLimitAuth()

	mux.HandleFunc("POST /api/auth/register", rateLimiter(auth.Register))
	mux.HandleFunc("GET /api/auth/verify-email", auth.VerifyEmail)
	mux.HandleFunc("POST /api/auth/verify-email", auth.VerifyEmail)
	mux.HandleFunc("POST /api/auth/forgot-password", rateLimiter(auth.ForgotPassword))
	mux.HandleFunc("GET /api/auth/reset-token", auth.ValidateResetToken)
	mux.HandleFunc("POST /api/auth/reset-password", rateLimiter(auth.ResetPassword))
	mux.HandleFunc("POST /api/auth/login", rateLimiter(auth.Login))
	mux.HandleFunc("POST /api/auth/logout", auth.Logout)
	mux.HandleFunc("GET /api/auth/me", middleware.RequireAuth(auth.Me))

	// OAuth
	mux.HandleFunc("GET /auth/google", rateLimiter(auth.GoogleAuth))
	mux.HandleFunc("GET /auth/google/callback", rateLimiter(auth.GoogleCallback))
	mux.HandleFunc("GET /auth/github", rateLimiter(auth.GitHubAuth))
	mux.HandleFunc("GET /auth/github/callback", rateLimiter(auth.GitHubCallback))

	// File sharing
	mux.HandleFunc("POST /api/shares", middleware.RequireAuth(share.Create))
	mux.HandleFunc("POST /api/shares/{shareID}/resolve", share.Resolve)

	return middleware.Chain(mux,
		middleware.Recover,
		middleware.RequestLogging,
		middleware.AuthMiddleware(app.AuthService),
	)
}
