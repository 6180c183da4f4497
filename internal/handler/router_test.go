package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/mediagate/internal/auth"
	"github.com/hitoshi/mediagate/internal/media"
	"github.com/hitoshi/mediagate/internal/middleware"
	"github.com/hitoshi/mediagate/internal/model"
)

// mockAuthenticator はトークン文字列からアクセスコンテキストを引くモック。
// 未登録のトークンは匿名に縮退する。
type mockAuthenticator struct {
	contexts map[string]*auth.AccessContext
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, token string) *auth.AccessContext {
	if ac, ok := m.contexts[token]; ok {
		return ac
	}
	return &auth.AccessContext{IsSafeMode: true}
}

func testRouter(t *testing.T) http.Handler {
	t.Helper()

	adminCtx := &auth.AccessContext{
		User:            &model.User{ID: "admin-1", Email: "admin@example.com", Role: model.RoleAdmin},
		IsAuthenticated: true,
		IsAdmin:         true,
	}
	userCtx := &auth.AccessContext{
		User:            &model.User{ID: "user-1", Email: "user@example.com", Role: model.RoleUser, SafeModeOnly: true},
		IsAuthenticated: true,
		IsSafeMode:      true,
	}

	authService := &mockAuthService{
		requestOTPFunc: func(ctx context.Context, email string) (time.Time, error) {
			return time.Now().Add(10 * time.Minute), nil
		},
		verifyOTPFunc: func(ctx context.Context, email, code string) (string, *model.User, error) {
			return "", nil, model.ErrInvalidCredential
		},
		logoutFunc: func(ctx context.Context, token string) error { return nil },
	}

	mediaService := &mockMediaService{
		listMediaFunc: func(ctx context.Context, ac *auth.AccessContext, opts media.ListOptions) ([]*model.MediaItem, error) {
			return []*model.MediaItem{sampleItem("m1")}, nil
		},
		createMediaFunc: func(ctx context.Context, ac *auth.AccessContext, input media.MediaInput) (*model.MediaItem, error) {
			return sampleItem("m-new"), nil
		},
		addFavoriteFunc: func(ctx context.Context, ac *auth.AccessContext, mediaID string) error {
			return nil
		},
		listFavoritesFunc: func(ctx context.Context, ac *auth.AccessContext) ([]*model.MediaItem, error) {
			return nil, nil
		},
	}

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(100),
		GeneralBurst:    100,
		OTPRate:         rate.Limit(0.01),
		OTPBurst:        2,
		CleanupInterval: time.Minute,
	})
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		Authenticator: &mockAuthenticator{contexts: map[string]*auth.AccessContext{
			"admin-token": adminCtx,
			"user-token":  userCtx,
		}},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		CSRFConfig:        middleware.CSRFConfig{},
		AuthService:       authService,
		AuthConfig:        AuthHandlerConfig{TokenMaxAge: 86400},
		MediaService:      mediaService,
	})
}

func withToken(req *http.Request, token string) *http.Request {
	req.AddCookie(&http.Cookie{Name: middleware.TokenCookieName, Value: token})
	return req
}

func withCSRF(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "csrf-value"})
	req.Header.Set("X-CSRF-Token", "csrf-value")
	return req
}

func TestRouter_PublicCatalogAllowsAnonymous(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/media", nil)
	req.RemoteAddr = "203.0.113.1:40000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ステータスコード = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRouter_CreateMedia_AnonymousUnauthorized(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/media", strings.NewReader(`{"title":"x","kind":"video"}`))
	req.RemoteAddr = "203.0.113.1:40000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ステータスコード = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRouter_CreateMedia_NonAdminForbidden(t *testing.T) {
	router := testRouter(t)

	req := withToken(httptest.NewRequest(http.MethodPost, "/api/media", strings.NewReader(`{"title":"x","kind":"video"}`)), "user-token")
	req.RemoteAddr = "203.0.113.1:40000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("ステータスコード = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRouter_CreateMedia_AdminWithCSRF(t *testing.T) {
	router := testRouter(t)

	req := withCSRF(withToken(httptest.NewRequest(http.MethodPost, "/api/media", strings.NewReader(`{"title":"x","kind":"video"}`)), "admin-token"))
	req.RemoteAddr = "203.0.113.1:40000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("ステータスコード = %d, want %d", rec.Code, http.StatusCreated)
	}
}

func TestRouter_CreateMedia_AdminWithoutCSRF(t *testing.T) {
	router := testRouter(t)

	req := withToken(httptest.NewRequest(http.MethodPost, "/api/media", strings.NewReader(`{"title":"x","kind":"video"}`)), "admin-token")
	req.RemoteAddr = "203.0.113.1:40000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("ステータスコード = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRouter_Favorites_RequireLogin(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/favorites", nil)
	req.RemoteAddr = "203.0.113.1:40000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ステータスコード = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRouter_AddFavorite_UserWithCSRF(t *testing.T) {
	router := testRouter(t)

	req := withCSRF(withToken(httptest.NewRequest(http.MethodPost, "/api/favorites/m1", nil), "user-token"))
	req.RemoteAddr = "203.0.113.1:40000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("ステータスコード = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestRouter_Me_InvalidTokenDegradesToAnonymous(t *testing.T) {
	router := testRouter(t)

	req := withToken(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), "revoked-token")
	req.RemoteAddr = "203.0.113.1:40000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ステータスコード = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRouter_OTPRequest_RateLimited(t *testing.T) {
	router := testRouter(t)

	var lastCode int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/otp/request",
			strings.NewReader(`{"email":"user@example.com"}`))
		req.RemoteAddr = "203.0.113.9:40000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	// バースト2を超えた3回目は429になる
	if lastCode != http.StatusTooManyRequests {
		t.Errorf("3回目のステータスコード = %d, want %d", lastCode, http.StatusTooManyRequests)
	}
}

func TestRouter_CSRFTokenEndpoint(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	req.RemoteAddr = "203.0.113.1:40000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "token") {
		t.Errorf("レスポンスにトークンが含まれていない: %s", rec.Body.String())
	}
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.1:40000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ステータスコード = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/media", nil)
	req.RemoteAddr = "203.0.113.1:40000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("X-Content-Type-Options ヘッダーが設定されていない")
	}
}
