package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/greasedesk/greasedesk/auth"
	"github.com/greasedesk/greasedesk/gate"
	"github.com/greasedesk/greasedesk/httpx"
	"github.com/greasedesk/greasedesk/internal/config"
	"github.com/greasedesk/greasedesk/internal/db"
	"github.com/greasedesk/greasedesk/internal/handlers"
	"github.com/greasedesk/greasedesk/internal/logging"
	"github.com/greasedesk/greasedesk/internal/mailer"
	"github.com/greasedesk/greasedesk/internal/metrics"
	"github.com/greasedesk/greasedesk/internal/policy"
	"github.com/greasedesk/greasedesk/internal/services"
	"github.com/greasedesk/greasedesk/internal/tenant"
)

// Deps are the collaborators the HTTP application is built from.
type Deps struct {
	DB      *gorm.DB
	Config  *config.Config
	Log     *zap.Logger
	Mailer  mailer.Sender
	Metrics *metrics.Recorder
	Hasher  services.PasswordHasher
	// Now overrides the service clock; nil means time.Now.
	Now func() time.Time
}

// App is the main application handler that sets up all routes.
type App struct {
	router   chi.Router
	db       *gorm.DB
	log      *zap.Logger
	metrics  *metrics.Recorder
	sessions *auth.Sessions
	authGate *policy.AuthGate
	resolver tenant.Resolver
}

// NewApp creates a new application with all routes configured.
func NewApp(d Deps) *App {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Hasher == nil {
		d.Hasher = auth.BcryptHasher{}
	}
	cfg := d.Config
	a := &App{
		router:   chi.NewRouter(),
		db:       d.DB,
		log:      d.Log,
		metrics:  d.Metrics,
		sessions: auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL, cfg.SecureCookies),
		authGate: policy.NewAuthGate(),
		resolver: tenant.NewDBResolver(d.DB),
	}

	opts := services.Options{
		BaseURL:              cfg.BaseURL,
		VerificationTokenTTL: cfg.VerificationTokenTTL,
		InvitationLifetime:   cfg.InvitationLifetime,
		TrialDays:            cfg.TrialDays,
	}
	accounts := services.NewAccountService(d.DB, d.Hasher, d.Mailer, opts, d.Metrics, d.Log)
	onboarding := services.NewOnboardingService(d.DB, a.authGate, opts, d.Metrics, d.Log)
	rates := services.NewRatesService(d.DB, a.authGate, d.Metrics, d.Log)
	invites := services.NewInviteService(d.DB, a.authGate, d.Hasher, d.Mailer, opts, d.Metrics, d.Log)
	workshop := services.NewWorkshopService(d.DB, a.authGate, d.Metrics, d.Log)
	if d.Now != nil {
		accounts.SetClock(d.Now)
		onboarding.SetClock(d.Now)
		rates.SetClock(d.Now)
		invites.SetClock(d.Now)
		workshop.SetClock(d.Now)
	}

	a.routes(cfg,
		handlers.NewAuthHandler(accounts, a.sessions, a.resolver, cfg.BaseURL),
		handlers.NewOnboardingHandler(onboarding, rates, invites),
		handlers.NewSettingsHandler(rates),
		handlers.NewInviteHandler(invites, a.sessions),
		handlers.NewWorkshopHandler(workshop),
	)
	return a
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *App) routes(cfg *config.Config, ah *handlers.AuthHandler, oh *handlers.OnboardingHandler,
	sh *handlers.SettingsHandler, ih *handlers.InviteHandler, wh *handlers.WorkshopHandler) {
	r := a.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(a.metrics.Middleware)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(a.sessions.Middleware)

	r.Get("/healthz", a.health)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", ah.Register)
			r.Get("/verify", ah.Verify)
			r.Post("/resend-verification", ah.ResendVerification)
			r.Post("/login", ah.Login)
			r.Post("/logout", ah.Logout)
			r.With(auth.RequireAuth).Get("/me", ah.Me)
		})
		r.Post("/invites/accept", ih.Accept)

		// Tenant routes: the context is resolved from the store on every request.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)
			r.Use(tenant.Middleware(a.resolver))

			r.Route("/onboarding", func(r chi.Router) {
				r.Post("/start-trial", oh.StartTrial)
				r.Post("/setup", oh.Setup)
				r.With(tenant.RequireSite).Post("/rates", oh.Rates)
				r.With(a.requirePermission(policy.ResourceTeam, gate.ActionInvite)).Post("/invite", oh.Invite)
				r.Get("/status", oh.Status)
				r.Post("/complete", oh.Complete)
			})
			r.Get("/team/members", ih.Members)
			r.With(tenant.RequireSite).Get("/settings", sh.Get)
			r.Post("/settings/rates", sh.UpdateRates)

			r.Group(func(r chi.Router) {
				r.Use(tenant.RequireSite)
				r.Get("/bookings", wh.ListBookings)
				r.Post("/bookings", wh.CreateBooking)
				r.Post("/jobcards", wh.CreateJobCard)
				r.Get("/jobcards/{id}", wh.GetJobCard)
				r.Patch("/jobcards/{id}/tasks/{taskId}", wh.ToggleTask)
			})
		})
	})
}

// requirePermission wraps a handler to require a role permission.
func (a *App) requirePermission(resourceType string, action gate.Action) func(http.Handler) http.Handler {
	return a.authGate.RequirePermission(resourceType, action)
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	if err := db.Ping(r.Context(), a.db); err != nil {
		logging.FromContext(r.Context()).Warn("health check failed", zap.Error(err))
		httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger stores a request-scoped logger and logs each request once.
func (a *App) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		l := a.log.With(zap.String("request_id", middleware.GetReqID(r.Context())))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(logging.WithContext(r.Context(), l)))
		l.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
