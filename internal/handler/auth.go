package handler

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/hopegrove/hopegrove/internal/config"
	"github.com/hopegrove/hopegrove/internal/ctxkeys"
	"github.com/hopegrove/hopegrove/internal/model"
	"github.com/hopegrove/hopegrove/internal/repository"
	"github.com/hopegrove/hopegrove/internal/service"
	"github.com/hopegrove/hopegrove/internal/validation"
)

type AuthHandler struct {
	auth *service.AuthService
	cfg  *config.Config

	googleOAuthConfig *oauth2.Config
	githubOAuthConfig *oauth2.Config
}

func NewAuthHandler(auth *service.AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		auth: auth,
		cfg:  cfg,
		googleOAuthConfig: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.AppURL + "/auth/google/callback",
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		githubOAuthConfig: &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.AppURL + "/auth/github/callback",
			Scopes:       []string{"user:email"},
			Endpoint:     github.Endpoint,
		},
	}
}

type userResponse struct {
	ID            string `json:"id"`
	FullName      string `json:"full_name"`
	Email         string `json:"email"`
	Username      string `json:"username"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:            u.ID,
		FullName:      u.FullName,
		Email:         u.Email,
		Username:      u.Username,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
	}
}

// respondAuthError maps service errors onto the envelope. Anything not
// recognized is an internal failure.
func respondAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmailTaken):
		respondErrorCode(w, http.StatusConflict, KindConflict, "email_taken", err.Error())
	case errors.Is(err, service.ErrUsernameTaken):
		respondErrorCode(w, http.StatusConflict, KindConflict, "username_taken", err.Error())
	case errors.Is(err, repository.ErrUserNotFound):
		respondError(w, http.StatusNotFound, KindNotFound, "no account found for that email or username")
	case errors.Is(err, service.ErrInvalidToken):
		respondError(w, http.StatusBadRequest, KindInvalidToken, err.Error())
	case errors.Is(err, service.ErrPasswordUnchanged):
		respondError(w, http.StatusBadRequest, KindValidation, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, KindAuth, err.Error())
	case errors.Is(err, service.ErrVerificationLinkSent):
		respondErrorCode(w, http.StatusUnauthorized, KindAuth, "verification_link_sent",
			"please verify your email, we just sent you a new link")
	case errors.Is(err, service.ErrVerificationLinkPending):
		respondErrorCode(w, http.StatusUnauthorized, KindAuth, "verification_link_pending",
			"please verify your email using the link we already sent you")
	case validation.IsError(err):
		respondError(w, http.StatusBadRequest, KindValidation, err.Error())
	default:
		respondInternal(w, err)
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.auth.Register(service.RegisterInput{
		FullName: req.FullName,
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		respondAuthError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"user":    toUserResponse(user),
		"message": "registration successful, please check your email to verify your account",
	})
}

// VerifyEmail consumes a signup link. The emailed link arrives as a GET with
// query parameters; clients may also POST the same fields as JSON.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Token string `json:"token"`
	}
	if r.Method == http.MethodGet {
		req.Email = r.URL.Query().Get("email")
		req.Token = r.URL.Query().Get("token")
	} else if !decodeJSON(w, r, &req) {
		return
	}

	err := h.auth.VerifyEmail(req.Email, req.Token)
	if err != nil {
		respondAuthError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message": "email verified, you can now sign in",
	})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	sent, err := h.auth.RequestPasswordReset(req.Identifier)
	if err != nil {
		respondAuthError(w, err)
		return
	}

	msg := "a password reset link was sent to your email"
	if !sent {
		msg = "a reset link was already sent, please check your inbox"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"sent":    sent,
		"message": msg,
	})
}

func (h *AuthHandler) ValidateResetToken(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	tok := r.URL.Query().Get("token")

	err := h.auth.ValidateResetToken(email, tok)
	if err != nil {
		respondAuthError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.auth.CompletePasswordReset(req.Email, req.Token, req.Password)
	if err != nil {
		respondAuthError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message": "password updated, you can now sign in",
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.auth.Login(req.Identifier, req.Password)
	if err != nil {
		respondAuthError(w, err)
		return
	}

	jwtToken, err := h.auth.GenerateJWT(user)
	if err != nil {
		slog.Error("failed to generate JWT", "error", err, "user_id", user.ID)
		respondInternal(w, err)
		return
	}

	h.auth.SetJWTCookie(w, jwtToken, time.Now().Add(h.auth.JWTExpiry()))

	slog.Info("user logged in with password", "user_id", user.ID, "email", user.Email)
	respondJSON(w, http.StatusOK, map[string]any{
		"user":  toUserResponse(user),
		"token": jwtToken,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.auth.ClearJWTCookie(w)
	respondJSON(w, http.StatusOK, map[string]any{"message": "signed out"})
}

// Me returns the session claims for the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := ctxkeys.User(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, KindAuth, "authentication required")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":        claims["user_id"],
		"email":          claims["email"],
		"name":           claims["name"],
		"role":           claims["role"],
		"email_verified": claims["email_verified"],
	})
}

// GoogleAuth redirects to the Google OAuth consent screen.
func (h *AuthHandler) GoogleAuth(w http.ResponseWriter, r *http.Request) {
	state := generateOAuthState()
	h.setStateCookie(w, state)

	url := h.googleOAuthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// GoogleCallback handles the OAuth callback from Google.
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if !h.validateStateCookie(w, r) {
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		slog.Warn("google oauth callback missing code")
		h.oauthFailed(w, r)
		return
	}

	token, err := h.googleOAuthConfig.Exchange(r.Context(), code)
	if err != nil {
		slog.Error("google oauth token exchange failed", "error", err)
		h.oauthFailed(w, r)
		return
	}

	client := h.googleOAuthConfig.Client(r.Context(), token)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		slog.Error("failed to get google user info", "error", err)
		h.oauthFailed(w, r)
		return
	}
	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			slog.Error("failed to close response body", "error", closeErr)
		}
	}()

	var userInfo struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	err = json.NewDecoder(resp.Body).Decode(&userInfo)
	if err != nil {
		slog.Error("failed to decode google user info", "error", err)
		h.oauthFailed(w, r)
		return
	}

	h.finishOAuth(w, r, userInfo.Email, userInfo.Name, "google")
}

// GitHubAuth redirects to the GitHub OAuth consent screen.
func (h *AuthHandler) GitHubAuth(w http.ResponseWriter, r *http.Request) {
	state := generateOAuthState()
	h.setStateCookie(w, state)

	url := h.githubOAuthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// GitHubCallback handles the OAuth callback from GitHub.
func (h *AuthHandler) GitHubCallback(w http.ResponseWriter, r *http.Request) {
	if !h.validateStateCookie(w, r) {
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		slog.Warn("github oauth callback missing code")
		h.oauthFailed(w, r)
		return
	}

	token, err := h.githubOAuthConfig.Exchange(r.Context(), code)
	if err != nil {
		slog.Error("github oauth token exchange failed", "error", err)
		h.oauthFailed(w, r)
		return
	}

	client := h.githubOAuthConfig.Client(r.Context(), token)
	resp, err := client.Get("https://api.github.com/user")
	if err != nil {
		slog.Error("failed to get github user info", "error", err)
		h.oauthFailed(w, r)
		return
	}
	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			slog.Error("failed to close response body", "error", closeErr)
		}
	}()

	var userInfo struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	err = json.NewDecoder(resp.Body).Decode(&userInfo)
	if err != nil {
		slog.Error("failed to decode github user info", "error", err)
		h.oauthFailed(w, r)
		return
	}

	// GitHub omits the email from /user when it's private, fetch it from
	// the emails endpoint instead.
	if userInfo.Email == "" {
		email, err := h.githubPrimaryEmail(r.Context(), client)
		if err != nil {
			slog.Error("failed to get github user emails", "error", err)
			h.oauthFailed(w, r)
			return
		}
		userInfo.Email = email
	}

	if userInfo.Email == "" {
		slog.Warn("github oauth: no email found")
		h.oauthFailed(w, r)
		return
	}

	h.finishOAuth(w, r, userInfo.Email, userInfo.Name, "github")
}

func (h *AuthHandler) githubPrimaryEmail(ctx context.Context, client *http.Client) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.github.com/user/emails", nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			slog.Error("failed to close email response body", "error", closeErr)
		}
	}()

	var emails []struct {
		Email   string `json:"email"`
		Primary bool   `json:"primary"`
	}
	err = json.NewDecoder(resp.Body).Decode(&emails)
	if err != nil {
		return "", err
	}

	for _, e := range emails {
		if e.Primary {
			return e.Email, nil
		}
	}
	return "", nil
}

func (h *AuthHandler) finishOAuth(w http.ResponseWriter, r *http.Request, email, name, provider string) {
	user, err := h.auth.AuthenticateOAuth(email, name, provider)
	if err != nil {
		slog.Error("oauth authentication failed", "error", err, "provider", provider)
		h.oauthFailed(w, r)
		return
	}

	jwtToken, err := h.auth.GenerateJWT(user)
	if err != nil {
		slog.Error("failed to generate JWT", "error", err, "user_id", user.ID)
		h.oauthFailed(w, r)
		return
	}

	h.auth.SetJWTCookie(w, jwtToken, time.Now().Add(h.auth.JWTExpiry()))

	slog.Info("user logged in with oauth", "user_id", user.ID, "provider", provider)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) setStateCookie(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600,
	})
}

func (h *AuthHandler) validateStateCookie(w http.ResponseWriter, r *http.Request) bool {
	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie("oauth_state")
	if err != nil || cookie.Value != state || state == "" {
		slog.Warn("oauth state validation failed", "error", err)
		h.oauthFailed(w, r)
		return false
	}

	http.SetCookie(w, &http.Cookie{
		Name:   "oauth_state",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	return true
}

func (h *AuthHandler) oauthFailed(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/sign-in?error=oauth", http.StatusSeeOther)
}

// generateOAuthState creates a random state token for OAuth CSRF protection.
func generateOAuthState() string {
	bytes := make([]byte, 32)
	_, err := rand.Read(bytes)
	if err != nil {
		panic("failed to generate oauth state: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
