package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/greasedesk/greasedesk/auth"
	"github.com/greasedesk/greasedesk/internal/db"
	"github.com/greasedesk/greasedesk/internal/mailer/mailertest"
	"github.com/greasedesk/greasedesk/internal/models"
	"github.com/greasedesk/greasedesk/internal/policy"
	"github.com/greasedesk/greasedesk/internal/services"
	"github.com/greasedesk/greasedesk/internal/tenant"
)

const baseURL = "https://app.greasedesk.test"

var fixedNow = time.Date(2025, 10, 28, 9, 30, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := db.Open(context.Background(), db.Options{
		DSN: fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", name),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	return conn
}

func options() services.Options {
	return services.Options{BaseURL: baseURL, VerificationTokenTTL: time.Hour, InvitationLifetime: 24 * time.Hour, TrialDays: 30}
}

func newAuthHandler(conn *gorm.DB, sender *mailertest.MockSender) *AuthHandler {
	accounts := services.NewAccountService(conn, auth.BcryptHasher{Cost: bcrypt.MinCost}, sender, options(), nil, zap.NewNop())
	accounts.SetClock(func() time.Time { return fixedNow })
	return NewAuthHandler(accounts, auth.NewSessions("test-secret", time.Hour, false), tenant.NewDBResolver(conn), baseURL+"/")
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestRegisterReportsEmailFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mailertest.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), "sam@garage.test", gomock.Any(), gomock.Any()).Return(false)
	h := newAuthHandler(setupTestDB(t), sender)

	rr := httptest.NewRecorder()
	h.Register(rr, jsonRequest(http.MethodPost, "/api/auth/register", `{"name":"Sam","email":"sam@garage.test","password":"supersecret"}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["emailSent"] != false || body["message"] != emailFailedMessage {
		t.Fatalf("unexpected body %v", body)
	}
	user, _ := body["user"].(map[string]any)
	if user["email"] != "sam@garage.test" || user["id"] == "" {
		t.Fatalf("unexpected user %v", user)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	h := newAuthHandler(setupTestDB(t), nil)
	cases := map[string]string{
		"malformed": `{"name":`,
		"empty":     ``,
		"invalid":   `{"name":"","email":"nope","password":"short"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.Register(rr, jsonRequest(http.MethodPost, "/api/auth/register", body))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d body=%s", rr.Code, rr.Body.String())
			}
			if decodeBody(t, rr)["code"] != "validation_error" {
				t.Fatalf("unexpected body %s", rr.Body.String())
			}
		})
	}
}

func TestVerifyRedirects(t *testing.T) {
	conn := setupTestDB(t)
	h := newAuthHandler(conn, nil)
	email := "verify@garage.test"
	if err := conn.Create(&models.User{Email: email, PasswordHash: "x", Role: models.RoleOwner, IsActive: true}).Error; err != nil {
		t.Fatalf("user: %v", err)
	}
	tokens := []models.VerificationToken{
		{Token: "fresh", Identifier: email, Expires: fixedNow.Add(time.Hour)},
		{Token: "stale", Identifier: email, Expires: fixedNow.Add(-time.Minute)},
	}
	if err := conn.Create(&tokens).Error; err != nil {
		t.Fatalf("tokens: %v", err)
	}

	cases := []struct {
		token string
		want  string
	}{
		{"stale", baseURL + "/onboarding/verify-status?status=expired"},
		{"unknown", baseURL + "/onboarding/verify-status?status=not_found"},
		{"fresh", baseURL + "/admin/login?callbackUrl=https%3A%2F%2Fapp.greasedesk.test%2Fonboarding%2Fbilling&email=verify%40garage.test&status=verified"},
		{"fresh", baseURL + "/onboarding/verify-status?status=not_found"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		h.Verify(rr, httptest.NewRequest(http.MethodGet, "/api/auth/verify?token="+tc.token, nil))
		if rr.Code != http.StatusFound {
			t.Fatalf("%s: expected 302 got %d", tc.token, rr.Code)
		}
		if got := rr.Header().Get("Location"); got != tc.want {
			t.Fatalf("%s: redirect %s, want %s", tc.token, got, tc.want)
		}
	}

	var stale int64
	conn.Model(&models.VerificationToken{}).Where("token = ?", "stale").Count(&stale)
	if stale != 1 {
		t.Fatalf("expired token should be kept")
	}
}

func TestResendAnswersUniformly(t *testing.T) {
	h := newAuthHandler(setupTestDB(t), nil)
	rr := httptest.NewRecorder()
	h.ResendVerification(rr, jsonRequest(http.MethodPost, "/api/auth/resend-verification", `{"email":"nobody@garage.test"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["message"] != resendMessage || body["emailSent"] != false {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestMeWithoutGroup(t *testing.T) {
	conn := setupTestDB(t)
	h := newAuthHandler(conn, nil)
	u := models.User{Email: "loose@garage.test", PasswordHash: "x", Role: models.RoleOwner, IsActive: true}
	if err := conn.Create(&u).Error; err != nil {
		t.Fatalf("user: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{UserID: u.ID, Email: u.Email}))
	rr := httptest.NewRecorder()
	h.Me(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["tenant"] != nil {
		t.Fatalf("expected null tenant, got %v", body["tenant"])
	}
	if user, _ := body["user"].(map[string]any); user["id"] != u.ID {
		t.Fatalf("unexpected user %v", body["user"])
	}
}

func TestTenantHandlersNeedContext(t *testing.T) {
	conn := setupTestDB(t)
	gate := policy.NewAuthGate()
	h := NewWorkshopHandler(services.NewWorkshopService(conn, gate, nil, zap.NewNop()))
	rr := httptest.NewRecorder()
	h.ListBookings(rr, httptest.NewRequest(http.MethodGet, "/api/bookings", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestToggleTaskUsesRouteParams(t *testing.T) {
	conn := setupTestDB(t)
	g := models.Group{GroupName: "Params", BillingEmail: "params@garage.test"}
	if err := conn.Create(&g).Error; err != nil {
		t.Fatalf("group: %v", err)
	}
	site := models.NewDefaultSite(g.ID, "Main", "1 High St")
	if err := conn.Create(site).Error; err != nil {
		t.Fatalf("site: %v", err)
	}
	card := models.JobCard{
		GroupID: g.ID, SiteID: site.ID, Vehicle: "Van", Registration: "X1", Status: models.JobCardOpen,
		Tasks: []models.JobCardTask{{Title: "Brakes"}},
	}
	if err := conn.Create(&card).Error; err != nil {
		t.Fatalf("card: %v", err)
	}
	tc := tenant.Context{UserID: "u1", GroupID: g.ID, SiteID: site.ID, Role: models.RoleStaff}

	h := NewWorkshopHandler(services.NewWorkshopService(conn, policy.NewAuthGate(), nil, zap.NewNop()))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", card.ID)
	rctx.URLParams.Add("taskId", card.Tasks[0].ID)
	req := httptest.NewRequest(http.MethodPatch, "/api/jobcards/"+card.ID+"/tasks/"+card.Tasks[0].ID, nil)
	ctx := context.WithValue(tenant.WithContext(req.Context(), tc), chi.RouteCtxKey, rctx)
	rr := httptest.NewRecorder()
	h.ToggleTask(rr, req.WithContext(ctx))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", rr.Code, rr.Body.String())
	}
	tasks, _ := decodeBody(t, rr)["tasks"].([]any)
	if len(tasks) != 1 || tasks[0].(map[string]any)["done"] != true {
		t.Fatalf("unexpected tasks %v", tasks)
	}
}
