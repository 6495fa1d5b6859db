// Package handlers adapts the services to JSON over HTTP. Handlers decode,
// call one service method and encode; tenant scoping and role checks live
// in middleware and the services.
package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/greasedesk/greasedesk/auth"
	"github.com/greasedesk/greasedesk/httpx"
	"github.com/greasedesk/greasedesk/internal/apperr"
	"github.com/greasedesk/greasedesk/internal/logging"
	"github.com/greasedesk/greasedesk/internal/models"
	"github.com/greasedesk/greasedesk/internal/services"
	"github.com/greasedesk/greasedesk/internal/tenant"
)

// Redirect targets of the email verification link.
const (
	VerifyStatusPath   = "/onboarding/verify-status"
	LoginPath          = "/admin/login"
	AfterVerifyPath    = "/onboarding/billing"
	registeredMessage  = "Account created. Please check your email to verify your account."
	emailFailedMessage = "Account created, but the verification email could not be sent. Request a new link from the sign-in page."
	resendMessage      = "If an unverified account exists for this address, a new verification link has been sent."
)

type AuthHandler struct {
	accounts *services.AccountService
	sessions *auth.Sessions
	resolver tenant.Resolver
	baseURL  string
}

func NewAuthHandler(accounts *services.AccountService, sessions *auth.Sessions, resolver tenant.Resolver, baseURL string) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		sessions: sessions,
		resolver: resolver,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func userBody(u *models.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name}
}

// Register creates the garage account and sends the verification email.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in services.RegisterInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	res, err := h.accounts.Register(r.Context(), in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	msg := registeredMessage
	if !res.EmailSent {
		msg = emailFailedMessage
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"user":      userBody(res.User),
		"emailSent": res.EmailSent,
		"message":   msg,
	})
}

// Verify consumes the token from the emailed link and redirects the browser.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	email, err := h.accounts.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	switch {
	case err == nil:
		q := url.Values{}
		q.Set("email", email)
		q.Set("status", "verified")
		q.Set("callbackUrl", h.baseURL+AfterVerifyPath)
		http.Redirect(w, r, h.baseURL+LoginPath+"?"+q.Encode(), http.StatusFound)
	case errors.Is(err, apperr.ErrTokenNotFound):
		http.Redirect(w, r, h.baseURL+VerifyStatusPath+"?status=not_found", http.StatusFound)
	case errors.Is(err, apperr.ErrTokenExpired):
		http.Redirect(w, r, h.baseURL+VerifyStatusPath+"?status=expired", http.StatusFound)
	default:
		httpx.Error(w, r, err)
	}
}

type emailRequest struct {
	Email string `json:"email"`
}

// ResendVerification answers identically whether or not the address exists.
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var in emailRequest
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	sent, err := h.accounts.ResendVerification(r.Context(), in.Email)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": resendMessage, "emailSent": sent})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := httpx.Decode(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	user, err := h.accounts.Authenticate(r.Context(), in.Email, in.Password)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.sessions.CreateSession(w, auth.Principal{UserID: user.ID, Email: user.Email}); err != nil {
		httpx.Error(w, r, apperr.Internal(err))
		return
	}
	logging.FromContext(r.Context()).Info("user logged in", zap.String("user_id", user.ID))
	httpx.JSON(w, http.StatusOK, map[string]any{"user": userBody(user)})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the session principal with a freshly resolved tenant context.
// A user still without a group gets a null tenant rather than an error.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Error(w, r, apperr.ErrNotAuthenticated)
		return
	}
	body := map[string]any{"user": p, "tenant": nil}
	tc, err := h.resolver.Resolve(r.Context(), p)
	switch {
	case err == nil:
		body["tenant"] = tc
	case errors.Is(err, apperr.ErrTenantContextMissing):
	default:
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, body)
}
