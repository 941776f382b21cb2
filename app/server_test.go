package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"github.com/Edjavier-collab/Main2MI-sub000/app/billing"
	"github.com/Edjavier-collab/Main2MI-sub000/app/config"
	"github.com/Edjavier-collab/Main2MI-sub000/app/llm"
	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
	"github.com/Edjavier-collab/Main2MI-sub000/app/store"
	"github.com/Edjavier-collab/Main2MI-sub000/auth"
	"github.com/Edjavier-collab/Main2MI-sub000/coach"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/progress"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type fakeBilling struct {
	checkoutPlan models.Plan
	checkoutBase string
	cancelOffer  *bool
	err          error
	events       []stripe.Event
}

func (f *fakeBilling) CreateCheckout(_ context.Context, _, _ string, plan models.Plan, baseURL string) (models.CheckoutSession, error) {
	f.checkoutPlan, f.checkoutBase = plan, baseURL
	return models.CheckoutSession{SessionID: "cs_1", URL: "https://stripe.test/cs_1"}, f.err
}

func (f *fakeBilling) UpdateTierFromSession(_ context.Context, sessionID string) (models.TierUpdate, error) {
	return models.TierUpdate{UserID: "user-1", Tier: models.TierPremium, UpdatedAt: fixedNow}, f.err
}

func (f *fakeBilling) GetSubscription(context.Context, string, string) (models.SubscriptionDetails, error) {
	return models.SubscriptionDetails{SubscriptionID: "sub_1", Plan: models.PlanMonthly}, f.err
}

func (f *fakeBilling) Cancel(_ context.Context, _, _ string, acceptOffer bool) (models.SubscriptionDetails, error) {
	f.cancelOffer = &acceptOffer
	return models.SubscriptionDetails{SubscriptionID: "sub_1", CancelAtPeriodEnd: !acceptOffer}, f.err
}

func (f *fakeBilling) ApplyRetentionDiscount(context.Context, string, string) (models.SubscriptionDetails, error) {
	return models.SubscriptionDetails{HasRetentionDiscount: true}, f.err
}

func (f *fakeBilling) Restore(context.Context, string, string) (models.SubscriptionDetails, error) {
	return models.SubscriptionDetails{}, f.err
}

func (f *fakeBilling) UpgradeToAnnual(context.Context, string, string) (models.SubscriptionDetails, error) {
	return models.SubscriptionDetails{Plan: models.PlanAnnual}, f.err
}

func (f *fakeBilling) CreatePortalSession(context.Context, string, string, string) (string, error) {
	return "https://billing.stripe.test/p", f.err
}

func (f *fakeBilling) ParseEvent(payload []byte, _ string, _ bool) (stripe.Event, error) {
	var ev stripe.Event
	err := json.Unmarshal(payload, &ev)
	return ev, err
}

func (f *fakeBilling) HandleEvent(_ context.Context, ev stripe.Event) error {
	f.events = append(f.events, ev)
	return nil
}

type testEnv struct {
	router  *gin.Engine
	store   *store.Memory
	billing *fakeBilling
}

func newTestEnv(t *testing.T, mode coach.Mode) *testEnv {
	t.Helper()
	t.Setenv("AUTH_DISABLED", "false")
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Supabase: config.SupabaseConfig{JWTSecret: testSecret, Audience: "authenticated"},
		Stripe:   config.StripeConfig{FrontendURL: "http://localhost:3000"},
		Server: config.ServerConfig{
			Environment:  "development",
			AllowOrigins: []string{"http://localhost:3000"},
		},
	}
	st := store.NewMemory()
	fb := &fakeBilling{}
	srv := NewServer(Deps{
		Config:  cfg,
		Store:   st,
		LLM:     llm.NewMock(),
		Billing: fb,
		Mode:    mode,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:     func() time.Time { return fixedNow },
	})
	router, err := NewRouter(srv)
	require.NoError(t, err)
	return &testEnv{router: router, store: st, billing: fb}
}

func userToken(t *testing.T, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.com",
		"role":  "authenticated",
		"aud":   "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

type call struct {
	method, path, token, device string
	body                        any
}

func (e *testEnv) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.device != "" {
		req.Header.Set(auth.DeviceHeader, c.device)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type meResponse struct {
	Tier      models.Tier `json:"tier"`
	Remaining *int        `json:"remaining"`
	CanStart  bool        `json:"canStart"`
	Anonymous bool        `json:"anonymous"`
}

func freeSession(date time.Time) models.Session {
	return models.NewSession(date, models.TierFree, models.PatientProfile{Name: "Alex"},
		[]models.ChatMessage{{Author: models.AuthorUser, Text: "How are you?"}}, models.Feedback{})
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, coach.ModeOnline)
	rec := env.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMeCreatesProfileAndReportsQuota(t *testing.T) {
	env := newTestEnv(t, coach.ModeOnline)
	tok := userToken(t, "user-1")

	rec := env.do(t, call{method: http.MethodGet, path: "/api/me", token: tok})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	me := decode[meResponse](t, rec)
	assert.Equal(t, models.TierFree, me.Tier)
	require.NotNil(t, me.Remaining)
	assert.Equal(t, 3, *me.Remaining)
	assert.True(t, me.CanStart)

	p, err := env.store.GetUserProfile(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, p)

	_, err = env.store.UpdateTier(context.Background(), "user-1", models.TierPremium)
	require.NoError(t, err)
	me = decode[meResponse](t, env.do(t, call{method: http.MethodGet, path: "/api/me", token: tok}))
	assert.Equal(t, models.TierPremium, me.Tier)
	assert.Nil(t, me.Remaining)
}

func TestPracticeStartGate(t *testing.T) {
	env := newTestEnv(t, coach.ModeOnline)
	tok := userToken(t, "user-1")
	ctx := context.Background()
	_, err := env.store.CreateUserProfile(ctx, "user-1", models.TierFree)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, env.store.SaveSession(ctx, "user-1", freeSession(fixedNow.Add(-time.Duration(i+1)*time.Hour))))
	}
	// last month does not count
	require.NoError(t, env.store.SaveSession(ctx, "user-1", freeSession(fixedNow.AddDate(0, -1, 0))))

	rec := env.do(t, call{method: http.MethodPost, path: "/api/practice/start", token: tok})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NoError(t, env.store.SaveSession(ctx, "user-1", freeSession(fixedNow.Add(-time.Minute))))
	rec = env.do(t, call{method: http.MethodPost, path: "/api/practice/start", token: tok})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, float64(0), decode[map[string]any](t, rec)["remaining"])
}

func TestAnonymousSessionsStayOnDevice(t *testing.T) {
	env := newTestEnv(t, coach.ModeOnline)
	device := auth.NewDeviceID()

	for i := 0; i < 3; i++ {
		rec := env.do(t, call{method: http.MethodPost, path: "/api/sessions", device: device,
			body: freeSession(fixedNow.Add(-time.Duration(i+1) * time.Minute))})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		saved := decode[models.Session](t, rec)
		assert.Equal(t, models.SyncLocal, saved.Sync)
	}

	list := decode[struct {
		Sessions []models.Session `json:"sessions"`
	}](t, env.do(t, call{method: http.MethodGet, path: "/api/sessions", device: device}))
	assert.Len(t, list.Sessions, 3)

	rec := env.do(t, call{method: http.MethodPost, path: "/api/practice/start", device: device})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	other := decode[meResponse](t, env.do(t, call{method: http.MethodGet, path: "/api/me", device: auth.NewDeviceID()}))
	assert.True(t, other.Anonymous)
	require.NotNil(t, other.Remaining)
	assert.Equal(t, 3, *other.Remaining)
}

func TestSaveSessionPastLimitIsRecorded(t *testing.T) {
	env := newTestEnv(t, coach.ModeOnline)
	tok := userToken(t, "user-1")

	for i := 0; i < 4; i++ {
		rec := env.do(t, call{method: http.MethodPost, path: "/api/sessions", token: tok,
			body: freeSession(fixedNow.Add(-time.Duration(i+1) * time.Minute))})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	list, err := env.store.GetUserSessions(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 4)
}

func TestSaveSessionBackdatedStillCounts(t *testing.T) {
	env := newTestEnv(t, coach.ModeOnline)
	tok := userToken(t, "user-1")

	for i := 0; i < 5; i++ {
		rec := env.do(t, call{method: http.MethodPost, path: "/api/sessions", token: tok,
			body: freeSession(fixedNow.AddDate(0, -2, 0).Add(time.Duration(i) * time.Minute))})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.True(t, decode[models.Session](t, rec).Date.Equal(fixedNow))
	}

	rec := env.do(t, call{method: http.MethodPost, path: "/api/practice/start", token: tok})
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	assert.Equal(t, float64(0), decode[map[string]any](t, rec)["remaining"])
}

func TestClampSessionDate(t *testing.T) {
	earlier := fixedNow.Add(-time.Hour)
	assert.Equal(t, earlier, clampSessionDate(earlier, fixedNow))
	assert.Equal(t, fixedNow, clampSessionDate(fixedNow.AddDate(0, -1, 0), fixedNow))
	assert.Equal(t, fixedNow, clampSessionDate(fixedNow.Add(time.Hour), fixedNow))
}

func TestProgressAndReport(t *testing.T) {
	env := newTestEnv(t, coach.ModeOnline)
	tok := userToken(t, "user-1")

	for _, d := range []time.Time{fixedNow.Add(-26 * time.Hour), fixedNow.Add(-time.Hour)} {
		sess := freeSession(d)
		sess.Feedback.EmpathyScore = 5
		sess.Feedback.SkillCounts = map[string]int{"Reflections": 2}
		rec := env.do(t, call{method: http.MethodPost, path: "/api/sessions", token: tok, body: sess})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := env.do(t, call{method: http.MethodGet, path: "/api/progress?tz=UTC", token: tok})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[progress.Progress](t, rec)
	assert.Equal(t, 40, p.XP)
	assert.Equal(t, 2, p.Streak.Current)
	assert.Equal(t, 2, p.TotalSessions)
	assert.Equal(t, 4.0, p.ClinicalHours)

	rec = env.do(t, call{method: http.MethodGet, path: "/api/report", token: tok})
	require.Equal(t, http.StatusOK, rec.Code)
	r := decode[progress.Report](t, rec)
	assert.Equal(t, 100, r.OverallScore)
	require.NotNil(t, r.TopStrength)
	assert.Equal(t, "Reflective Listening", r.TopStrength.Name)

	rec = env.do(t, call{method: http.MethodGet, path: "/api/progress?tz=Mars/Olympus", token: tok})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, call{method: http.MethodGet, path: "/api/progress", device: auth.NewDeviceID()})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[progress.Progress](t, rec).TotalSessions)
}

func TestSaveSessionCannotClaimPremium(t *testing.T) {
	env := newTestEnv(t, coach.ModeOnline)
	tok := userToken(t, "user-1")

	sess := freeSession(fixedNow.Add(-time.Minute))
	sess.Tier = models.TierPremium
	rec := env.do(t, call{method: http.MethodPost, path: "/api/sessions", token: tok, body: sess})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.TierFree, decode[models.Session](t, rec).Tier)
}

func TestProtectedRoutesRejectAnonymous(t *testing.T) {
	env := newTestEnv(t, coach.ModeOnline)
	for _, path := range []string{"/api/profile", "/api/get-subscription"} {
		rec := env.do(t, call{method: http.MethodGet, path: path, device: auth.NewDeviceID()})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestCoachingSummaryRequiresPremium(t *testing.T) {
	env := newTestEnv(t, coach.ModeOnline)
	tok := userToken(t, "user-1")
	ctx := context.Background()

	rec := env.do(t, call{method: http.MethodPost, path: "/api/coaching-summary", token: tok})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	_, err := env.store.UpdateTier(ctx, "user-1", models.TierPremium)
	require.NoError(t, err)
	rec = env.do(t, call{method: http.MethodPost, path: "/api/coaching-summary", token: tok})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	sess := freeSession(fixedNow.Add(-time.Hour))
	sess.Tier = models.TierPremium
	sess.ID = "premium-1"
	require.NoError(t, env.store.SaveSession(ctx, "user-1", sess))
	rec = env.do(t, call{method: http.MethodPost, path: "/api/coaching-summary", token: tok})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[models.CoachingSummary](t, rec).TotalSessions)
}

func TestAnalyzeSessionWithoutClinicianTurns(t *testing.T) {
	env := newTestEnv(t, coach.ModeOnline)
	rec := env.do(t, call{method: http.MethodPost, path: "/api/analyze-session", token: userToken(t, "user-1"),
		body: analyzeRequest{Transcript: []models.ChatMessage{{Author: models.AuthorPatient, Text: "Hi"}}}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.AnalysisInsufficientData, decode[models.Feedback](t, rec).AnalysisStatus)
}

func TestChatReturnsReplyAndMood(t *testing.T) {
	env := newTestEnv(t, coach.ModeOnline)
	rec := env.do(t, call{method: http.MethodPost, path: "/api/chat", device: auth.NewDeviceID(),
		body: chatRequest{Patient: models.PatientProfile{StageOfChange: models.StageContemplation}, Message: "What brings you in?"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[map[string]string](t, rec)
	assert.NotEmpty(t, out["reply"])
	assert.NotEmpty(t, out["mood"])

	rec = env.do(t, call{method: http.MethodPost, path: "/api/chat", device: auth.NewDeviceID(), body: map[string]string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutAndCancelRoutes(t *testing.T) {
	env := newTestEnv(t, coach.ModeOnline)
	tok := userToken(t, "user-1")

	rec := env.do(t, call{method: http.MethodPost, path: "/api/create-checkout-session", token: tok, body: map[string]string{"plan": "weekly"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, call{method: http.MethodPost, path: "/api/create-checkout-session", token: tok, body: map[string]string{"plan": "annual"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.PlanAnnual, env.billing.checkoutPlan)
	assert.Equal(t, "http://localhost:3000", env.billing.checkoutBase)

	rec = env.do(t, call{method: http.MethodPost, path: "/api/cancel-subscription", token: tok, body: map[string]string{"action": "pause"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, call{method: http.MethodPost, path: "/api/cancel-subscription", token: tok, body: map[string]string{"action": "accept_offer"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.billing.cancelOffer)
	assert.True(t, *env.billing.cancelOffer)

	env.billing.err = &billing.SubscriptionError{Err: billing.ErrNoSubscription, PremiumMismatch: true}
	rec = env.do(t, call{method: http.MethodGet, path: "/api/get-subscription", token: tok})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["hasPremiumTier"])
}

func TestStripeWebhookDispatches(t *testing.T) {
	env := newTestEnv(t, coach.ModeOnline)
	req := httptest.NewRequest(http.MethodPost, "/api/stripe-webhook",
		bytes.NewBufferString(`{"id":"evt_1","type":"invoice.payment_failed","data":{"object":{}}}`))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, env.billing.events, 1)
	assert.Equal(t, "evt_1", env.billing.events[0].ID)
}

func TestBillingStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, billingStatus(billing.ErrNotPaid))
	assert.Equal(t, http.StatusNotFound, billingStatus(billing.ErrNothingToRestore))
	assert.Equal(t, http.StatusServiceUnavailable, billingStatus(billing.ErrNotConfigured))
	assert.Equal(t, http.StatusInternalServerError, billingStatus(io.ErrUnexpectedEOF))
}
