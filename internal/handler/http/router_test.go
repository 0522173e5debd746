package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybertron15/review-booster/internal/auth"
	"github.com/cybertron15/review-booster/internal/domain"
	"github.com/cybertron15/review-booster/internal/event"
	"github.com/cybertron15/review-booster/internal/repository/supabase"
	"github.com/cybertron15/review-booster/internal/service"
	"github.com/cybertron15/review-booster/internal/session"
	"github.com/cybertron15/review-booster/pkg/health"
	"github.com/cybertron15/review-booster/pkg/httpclient"
	"github.com/cybertron15/review-booster/pkg/pagination"
)

const (
	testPassword  = "secret"
	testJWTSecret = "jwt-test-secret"
)

// --- Fake Supabase backend ---

type fakeBackend struct {
	mu         sync.Mutex
	businesses []domain.Business
	responses  []domain.Review
	inserts    int
	requests   int
	failList   bool
	failLookup bool
	failInsert bool
}

func newFakeBackend() *fakeBackend {
	created := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	return &fakeBackend{
		businesses: []domain.Business{
			{ID: "b2", Name: "Bravo Bistro", Active: true},
			{ID: "b1", Name: "Alpha Cafe", Active: true},
			{ID: "b3", Name: "Closed Diner", Active: false},
		},
		responses: []domain.Review{
			{ID: "r1", BusinessID: "b1", Rating: 5, Name: "Customer One", Email: "one@example.com", GoogleReviewed: true, CreatedAt: created},
			{ID: "r2", BusinessID: "b1", Rating: 3, Name: "Customer Two", Email: "two@example.com", CreatedAt: created},
			{ID: "r3", BusinessID: "b2", Rating: 1, Name: "Customer Three", Email: "three@example.com", CreatedAt: created},
		},
	}
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackend) insertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts
}

func (f *fakeBackend) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	q := r.URL.Query()
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/rest/v1/businesses":
		if id := strings.TrimPrefix(q.Get("id"), "eq."); id != "" {
			if f.failLookup {
				backendJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "upstream timeout"})
				return
			}
			out := []domain.Business{}
			for _, b := range f.businesses {
				if b.ID == id && b.Active {
					out = append(out, b)
				}
			}
			backendJSON(w, http.StatusOK, out)
			return
		}
		if f.failList {
			backendJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "upstream timeout"})
			return
		}
		out := []domain.Business{}
		for _, b := range f.businesses {
			if b.Active {
				out = append(out, b)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		backendJSON(w, http.StatusOK, out)

	case r.Method == http.MethodPost && r.URL.Path == "/rest/v1/responses":
		if f.failInsert {
			backendJSON(w, http.StatusBadRequest, map[string]string{"code": "23514", "message": "insert rejected"})
			return
		}
		var rows []domain.Review
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			backendJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		for _, row := range rows {
			row.CreatedAt = time.Now().UTC()
			f.responses = append([]domain.Review{row}, f.responses...)
		}
		f.inserts++
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodGet && r.URL.Path == "/rest/v1/responses":
		backendJSON(w, http.StatusOK, f.responses)

	case r.Method == http.MethodPost && r.URL.Path == "/auth/v1/token":
		var creds struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != testPassword {
			backendJSON(w, http.StatusBadRequest, map[string]string{
				"error":             "invalid_grant",
				"error_description": "Invalid login credentials",
			})
			return
		}
		backendJSON(w, http.StatusOK, map[string]any{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"expires_in":    3600,
			"user":          map[string]string{"id": "admin-1", "email": creds.Email},
		})

	case r.Method == http.MethodPost && (r.URL.Path == "/auth/v1/signup" || r.URL.Path == "/auth/v1/recover" || r.URL.Path == "/auth/v1/logout"):
		backendJSON(w, http.StatusOK, map[string]string{})

	default:
		backendJSON(w, http.StatusNotFound, map[string]string{"message": "no route"})
	}
}

func backendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// --- Test environment ---

type testEnv struct {
	backend  *fakeBackend
	sessions *session.Store
	server   *httptest.Server
	client   *http.Client
}

func newTestEnv(t *testing.T, configure ...func(*Dependencies)) *testEnv {
	t.Helper()

	backend := newFakeBackend()
	backendSrv := httptest.NewServer(backend)
	t.Cleanup(backendSrv.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	doer := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("supabase-e2e"),
		logger,
	)
	client := supabase.NewClient(supabase.Config{URL: backendSrv.URL, APIKey: "anon"}, doer)

	reviewRepo := supabase.NewReviewRepository(client)
	reviews := service.NewReviewService(supabase.NewBusinessRepository(client), reviewRepo, event.Noop{}, logger)
	sessions := session.NewStore(rdb, time.Hour, time.Hour)
	cookie := session.Cookie{Name: "rb_session"}

	deps := Dependencies{
		ServiceName:    "reviewbooster-test",
		Reviews:        reviews,
		Flow:           service.NewReviewFlow(reviews, sessions),
		Admin:          service.NewAdminService(auth.NewGoTrue(client), "http://localhost/reset-password", logger),
		Dashboard:      service.NewDashboardService(reviewRepo, reviews),
		Sessions:       sessions,
		Cookie:         cookie,
		Health:         health.NewHandler(),
		TokenValidator: auth.NewJWTVerifier(testJWTSecret, auth.DefaultAudience).Validator(),
		Pages:          PageOptions{GoogleReviewURL: "https://g.page/r/%s/review"},
		PublicURL:      "http://reviews.example.com",
		AllowedOrigins: []string{"*"},
		Logger:         logger,
	}
	for _, fn := range configure {
		fn(&deps)
	}

	router, err := NewRouter(deps)
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testEnv{
		backend:  backend,
		sessions: sessions,
		server:   srv,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.PostForm(e.server.URL+path, form)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

var tokenPattern = regexp.MustCompile(`name="token" value="([^"]+)"`)

// formToken opens the review form for businessID and returns its token.
func (e *testEnv) formToken(t *testing.T, businessID string) string {
	t.Helper()
	resp, body := e.get(t, "/business/"+businessID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m := tokenPattern.FindStringSubmatch(body)
	require.Len(t, m, 2, "review form has no token")
	return m[1]
}

func reviewValues(token string, rating string) url.Values {
	return url.Values{
		"token":         {token},
		"business_name": {"Alpha Cafe"},
		"rating":        {rating},
		"review":        {"Great coffee"},
		"name":          {"Ana"},
		"email":         {"ana@example.com"},
	}
}

func (e *testEnv) signIn(t *testing.T) {
	t.Helper()
	resp, _ := e.postForm(t, "/admin/login", url.Values{
		"mode":     {service.ModeSignIn},
		"email":    {"admin@example.com"},
		"password": {testPassword},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/admin", resp.Header.Get("Location"))
}

// --- Public flow ---

func TestHome_ListsActiveBusinessesByName(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Alpha Cafe")
	assert.Contains(t, body, "Bravo Bistro")
	assert.NotContains(t, body, "Closed Diner")
	assert.Less(t, strings.Index(body, "Alpha Cafe"), strings.Index(body, "Bravo Bistro"))
	assert.Contains(t, body, `href="/business/b1"`)
}

func TestHome_LoadFailureShowsNotice(t *testing.T) {
	env := newTestEnv(t)
	env.backend.set(func(f *fakeBackend) { f.failList = true })

	resp, body := env.get(t, "/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Failed to load restaurants")
	assert.NotContains(t, body, "Alpha Cafe")
}

func TestReviewForm_UnknownOrInactiveBusiness(t *testing.T) {
	env := newTestEnv(t)

	for _, id := range []string{"missing", "b3"} {
		resp, _ := env.get(t, "/business/"+id)
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/not-found", resp.Header.Get("Location"))
	}
}

func TestReviewForm_LookupFailure(t *testing.T) {
	t.Run("collapsed into not found", func(t *testing.T) {
		env := newTestEnv(t)
		env.backend.set(func(f *fakeBackend) { f.failLookup = true })

		resp, _ := env.get(t, "/business/b1")

		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/not-found", resp.Header.Get("Location"))
	})

	t.Run("separate unavailable page", func(t *testing.T) {
		env := newTestEnv(t, func(d *Dependencies) { d.Pages.SeparateUnavailable = true })
		env.backend.set(func(f *fakeBackend) { f.failLookup = true })

		resp, body := env.get(t, "/business/b1")

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Contains(t, body, "Temporarily Unavailable")
	})
}

func TestSubmitReview_FiveStarsOffersGoogleReview(t *testing.T) {
	env := newTestEnv(t)
	token := env.formToken(t, "b1")

	resp, _ := env.postForm(t, "/business/b1", reviewValues(token, "5"))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/thank-you", resp.Header.Get("Location"))

	resp, body := env.get(t, "/thank-you")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Thank You, Ana!")
	assert.Contains(t, body, "ana@example.com")
	assert.Contains(t, body, "Thank you for your feedback!")
	assert.Contains(t, body, "https://g.page/r/b1/review")
	assert.Contains(t, body, "Post on Google")
	assert.Equal(t, 1, env.backend.insertCount())

	env.backend.set(func(f *fakeBackend) {
		stored := f.responses[0]
		assert.Equal(t, "b1", stored.BusinessID)
		assert.Equal(t, 5, stored.Rating)
		assert.False(t, stored.GoogleReviewed)
	})
}

func TestSubmitReview_BelowFiveStarsHasNoGoogleLink(t *testing.T) {
	env := newTestEnv(t)
	token := env.formToken(t, "b1")

	resp, _ := env.postForm(t, "/business/b1", reviewValues(token, "4"))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body := env.get(t, "/thank-you")
	assert.Contains(t, body, "Thank You, Ana!")
	assert.NotContains(t, body, "g.page")
	assert.NotContains(t, body, "Post on Google")
}

func TestSubmitReview_ZeroRatingIsRejectedWithoutInsert(t *testing.T) {
	env := newTestEnv(t)
	token := env.formToken(t, "b1")

	resp, body := env.postForm(t, "/business/b1", reviewValues(token, "0"))

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Please select a rating")
	assert.Contains(t, body, `value="Ana"`)
	assert.Equal(t, 0, env.backend.insertCount())
}

func TestSubmitReview_ZeroRatingMakesNoBackendCalls(t *testing.T) {
	env := newTestEnv(t)
	token := env.formToken(t, "b1")
	env.backend.set(func(f *fakeBackend) { f.failLookup = true })
	before := env.backend.requestCount()

	resp, body := env.postForm(t, "/business/b1", reviewValues(token, "0"))

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Please select a rating")
	assert.Contains(t, body, "Share Your Feedback for Alpha Cafe")
	assert.Contains(t, body, `name="token" value="`+token+`"`)
	assert.Equal(t, before, env.backend.requestCount(), "rejected form must not reach the backend")
}

func TestSubmitReview_KeepsFormWhenBackendDown(t *testing.T) {
	env := newTestEnv(t)
	token := env.formToken(t, "b1")
	env.backend.set(func(f *fakeBackend) {
		f.failLookup = true
		f.failInsert = true
	})

	resp, body := env.postForm(t, "/business/b1", reviewValues(token, "5"))

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Location"))
	assert.Contains(t, body, "Failed to submit review. Please try again.")
	assert.Contains(t, body, "Share Your Feedback for Alpha Cafe")
	assert.Contains(t, body, `value="ana@example.com"`)
	assert.Equal(t, 0, env.backend.insertCount())

	env.backend.set(func(f *fakeBackend) {
		f.failLookup = false
		f.failInsert = false
	})
	resp, _ = env.postForm(t, "/business/b1", reviewValues(token, "5"))
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, 1, env.backend.insertCount())
}

func TestSubmitReview_UsesCachedDirectory(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := env.formToken(t, "b1")
	env.backend.set(func(f *fakeBackend) { f.failLookup = true })

	resp, _ = env.postForm(t, "/business/b1", reviewValues(token, "5"))

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/thank-you", resp.Header.Get("Location"))
	assert.Equal(t, 1, env.backend.insertCount())
}

func TestSubmitReview_WithoutSessionCookie(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.postForm(t, "/business/b1", reviewValues("", "5"))

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	var sessionCookies int
	for _, ck := range resp.Cookies() {
		if ck.Name == "rb_session" {
			sessionCookies++
		}
	}
	assert.Equal(t, 1, sessionCookies)

	resp, body := env.get(t, "/thank-you")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Thank You, Ana!")
	assert.Contains(t, body, "Thank you for your feedback!")
}

func TestSubmitReview_EmailIsNotFormatChecked(t *testing.T) {
	env := newTestEnv(t)
	token := env.formToken(t, "b1")
	values := reviewValues(token, "4")
	values.Set("email", "ana at example")

	resp, _ := env.postForm(t, "/business/b1", values)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	values = reviewValues(env.formToken(t, "b1"), "4")
	values.Set("email", "")
	resp, body := env.postForm(t, "/business/b1", values)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, `value="Ana"`)
	assert.Equal(t, 1, env.backend.insertCount())
}

func TestSubmitReview_RepeatedTokenInsertsOnce(t *testing.T) {
	env := newTestEnv(t)
	token := env.formToken(t, "b1")

	first, _ := env.postForm(t, "/business/b1", reviewValues(token, "5"))
	second, _ := env.postForm(t, "/business/b1", reviewValues(token, "5"))

	assert.Equal(t, http.StatusSeeOther, first.StatusCode)
	assert.Equal(t, http.StatusSeeOther, second.StatusCode)
	assert.Equal(t, "/thank-you", second.Header.Get("Location"))
	assert.Equal(t, 1, env.backend.insertCount())
}

func TestSubmitReview_FailureKeepsFormAndAllowsRetry(t *testing.T) {
	env := newTestEnv(t)
	token := env.formToken(t, "b1")
	env.backend.set(func(f *fakeBackend) { f.failInsert = true })

	resp, body := env.postForm(t, "/business/b1", reviewValues(token, "5"))

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, "Failed to submit review. Please try again.")
	assert.Contains(t, body, `value="ana@example.com"`)

	resp, _ = env.get(t, "/thank-you")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	env.backend.set(func(f *fakeBackend) { f.failInsert = false })
	resp, _ = env.postForm(t, "/business/b1", reviewValues(token, "5"))
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, 1, env.backend.insertCount())
}

func TestThankYou_WithoutSubmissionRedirectsHome(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.get(t, "/thank-you")

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestUnknownPathRendersNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/no/such/page")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "404 - Page Not Found")
	assert.Contains(t, body, "Go to Homepage")
}

// --- Admin flow ---

func TestAdmin_DashboardRequiresSession(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/admin", "/business/b1/admin", "/business/b1/qr.png"} {
		resp, _ := env.get(t, path)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		assert.Equal(t, "/admin/login", resp.Header.Get("Location"), path)
	}
}

func TestAdmin_SignInShowsDashboard(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)

	resp, body := env.get(t, "/admin")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Logged in successfully!")
	assert.Contains(t, body, "All Restaurants")
	assert.Contains(t, body, "33% conversion rate")
	assert.Contains(t, body, "Customer Three")
}

func TestAdmin_DashboardFiltersByBusiness(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)

	resp, body := env.get(t, "/business/b1/admin")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "50% conversion rate")
	assert.Contains(t, body, "4.0")
	assert.Contains(t, body, "Customer One")
	assert.NotContains(t, body, "Customer Three")

	_, body = env.get(t, "/business/b1/admin?business=b2")
	assert.Contains(t, body, "Customer Three")
	assert.NotContains(t, body, "Customer One")
}

func TestAdmin_SignInFailureShowsProviderMessage(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.postForm(t, "/admin/login", url.Values{
		"mode":     {service.ModeSignIn},
		"email":    {"admin@example.com"},
		"password": {"wrong"},
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Invalid login credentials")

	resp, _ = env.get(t, "/admin")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestAdmin_SignUpAndForgotNotices(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.postForm(t, "/admin/login", url.Values{
		"mode":     {service.ModeSignUp},
		"email":    {"new@example.com"},
		"password": {testPassword},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Sign up successful. Check your email to verify.")

	resp, body = env.postForm(t, "/admin/login", url.Values{
		"mode":  {service.ModeForgot},
		"email": {"new@example.com"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Password reset email sent.")
}

func TestAdmin_LoginPageModes(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.get(t, "/admin/login?mode=forgot")
	assert.Contains(t, body, "Forgot Password")
	assert.Contains(t, body, "Send reset email")
	assert.NotContains(t, body, `name="password"`)

	_, body = env.get(t, "/admin/login")
	assert.Contains(t, body, "Sign In")
	assert.Contains(t, body, "Forgot password?")
}

func TestAdmin_Logout(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)

	resp, _ := env.postForm(t, "/admin/logout", url.Values{})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin/login", resp.Header.Get("Location"))

	resp, _ = env.get(t, "/admin")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestAdmin_QRCode(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)

	resp, body := env.get(t, "/business/b1/qr.png")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, `inline; filename="alpha-cafe-qr.png"`, resp.Header.Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(body, "\x89PNG"))

	resp, _ = env.get(t, "/business/b3/qr.png")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdmin_RefreshDirectory(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)

	_, body := env.get(t, "/")
	assert.NotContains(t, body, "Charlie Grill")

	env.backend.set(func(f *fakeBackend) {
		f.businesses = append(f.businesses, domain.Business{ID: "b4", Name: "Charlie Grill", Active: true})
	})
	resp, _ := env.postForm(t, "/admin/businesses/refresh", url.Values{})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body = env.get(t, "/")
	assert.Contains(t, body, "Charlie Grill")
}

// --- JSON API ---

type apiEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, body string) apiEnvelope {
	t.Helper()
	var env apiEnvelope
	require.NoError(t, json.Unmarshal([]byte(body), &env), body)
	return env
}

func TestAPI_GetBusinessDistinguishesNotFoundFromUnavailable(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/api/v1/businesses/b1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var b domain.Business
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, body).Data, &b))
	assert.Equal(t, "Alpha Cafe", b.Name)

	resp, body = env.get(t, "/api/v1/businesses/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decodeEnvelope(t, body).Error.Code)

	env.backend.set(func(f *fakeBackend) { f.failLookup = true })
	resp, body = env.get(t, "/api/v1/businesses/b1")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decodeEnvelope(t, body).Error.Code)
}

func TestAPI_ListBusinesses(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/api/v1/businesses")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var list []domain.Business
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, body).Data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, "b1", list[0].ID)
}

func (e *testEnv) postJSON(t *testing.T, path, body string, headers map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func TestAPI_CreateReviewIdempotency(t *testing.T) {
	env := newTestEnv(t)
	payload := `{"rating":5,"review":"Great","name":"Ana","email":"ana@example.com"}`
	key := map[string]string{"Idempotency-Key": "key-1"}

	resp, _ := env.postJSON(t, "/api/v1/businesses/b1/reviews", payload, key)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := env.postJSON(t, "/api/v1/businesses/b1/reviews", payload, key)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", decodeEnvelope(t, body).Error.Code)

	assert.Equal(t, 1, env.backend.insertCount())
}

func TestAPI_CreateReviewValidation(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.postJSON(t, "/api/v1/businesses/b1/reviews", `{"rating":0,"name":"Ana","email":"ana@example.com"}`, nil)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	e := decodeEnvelope(t, body)
	require.NotNil(t, e.Error)
	assert.Equal(t, "VALIDATION_ERROR", e.Error.Code)
	assert.Contains(t, e.Error.Fields, "rating")
	assert.Equal(t, 0, env.backend.insertCount())
}

func signedToken(t *testing.T, secret string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin-1",
		"aud": auth.DefaultAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAPI_AdminStats(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/v1/admin/stats?business=b1", nil)
	require.NoError(t, err)
	resp, err := env.client.Do(req)
	require.NoError(t, err)
	_ = readBody(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.Header.Set("Authorization", "Bearer "+signedToken(t, testJWTSecret))
	resp, err = env.client.Do(req)
	require.NoError(t, err)
	body := readBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	var out statsResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, body).Data, &out))
	assert.Equal(t, "b1", out.Business)
	assert.Equal(t, 2, out.Stats.TotalReviews)
	assert.InDelta(t, 4.0, out.Stats.AverageRating, 0.001)
	assert.Equal(t, 1, out.Stats.GoogleReviews)
	assert.Equal(t, 50, out.Stats.GooglePercent)
	require.Len(t, out.Stats.Histogram, 5)
	assert.Equal(t, 5, out.Stats.Histogram[0].Stars)
	assert.Equal(t, 1, out.Stats.Histogram[0].Count)

	req.Header.Set("Authorization", "Bearer "+signedToken(t, "other-secret"))
	resp, err = env.client.Do(req)
	require.NoError(t, err)
	_ = readBody(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_AdminReviewsPaginated(t *testing.T) {
	env := newTestEnv(t)
	token := signedToken(t, testJWTSecret)

	fetch := func(query string) pagination.Page[reviewRowResponse] {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/v1/admin/reviews?"+query, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := env.client.Do(req)
		require.NoError(t, err)
		body := readBody(t, resp)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)

		var page pagination.Page[reviewRowResponse]
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, body).Data, &page))
		return page
	}

	first := fetch("per_page=2")
	assert.Equal(t, 3, first.Total)
	assert.Len(t, first.Items, 2)
	assert.Equal(t, 2, first.TotalPages)
	assert.True(t, first.HasNext)

	second := fetch("per_page=2&page=2")
	assert.Len(t, second.Items, 1)
	assert.False(t, second.HasNext)

	bravo := fetch("business=b2")
	require.Len(t, bravo.Items, 1)
	assert.Equal(t, "r3", bravo.Items[0].ID)
	assert.Equal(t, "Bravo Bistro", bravo.Items[0].BusinessName)
}

func TestAPI_AdminStatsNotMountedWithoutValidator(t *testing.T) {
	env := newTestEnv(t, func(d *Dependencies) { d.TokenValidator = nil })

	resp, _ := env.get(t, "/api/v1/admin/stats")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthLive(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.get(t, "/health/live")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
