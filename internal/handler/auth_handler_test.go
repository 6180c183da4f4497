package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/mediagate/internal/auth"
	"github.com/hitoshi/mediagate/internal/middleware"
	"github.com/hitoshi/mediagate/internal/model"
)

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	requestOTPFunc func(ctx context.Context, email string) (time.Time, error)
	verifyOTPFunc  func(ctx context.Context, email, code string) (string, *model.User, error)
	logoutFunc     func(ctx context.Context, token string) error
	logoutAllFunc  func(ctx context.Context, token string) error
}

var _ AuthServiceInterface = (*mockAuthService)(nil)

func (m *mockAuthService) RequestOTP(ctx context.Context, email string) (time.Time, error) {
	return m.requestOTPFunc(ctx, email)
}

func (m *mockAuthService) VerifyOTP(ctx context.Context, email, code string) (string, *model.User, error) {
	return m.verifyOTPFunc(ctx, email, code)
}

func (m *mockAuthService) Logout(ctx context.Context, token string) error {
	return m.logoutFunc(ctx, token)
}

func (m *mockAuthService) LogoutAll(ctx context.Context, token string) error {
	return m.logoutAllFunc(ctx, token)
}

func testAuthHandler(service *mockAuthService) *AuthHandler {
	return NewAuthHandler(service, AuthHandlerConfig{
		CookieSecure: false,
		TokenMaxAge:  86400,
	})
}

func decodeErrorResponse(t *testing.T, rec *httptest.ResponseRecorder) apiErrorResponse {
	t.Helper()
	var resp apiErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("エラーレスポンスの解析に失敗した: %v", err)
	}
	return resp
}

func TestRequestOTP_Success(t *testing.T) {
	expiresAt := time.Date(2025, 4, 1, 12, 10, 0, 0, time.UTC)
	var gotEmail string
	service := &mockAuthService{
		requestOTPFunc: func(ctx context.Context, email string) (time.Time, error) {
			gotEmail = email
			return expiresAt, nil
		},
	}
	h := testAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/otp/request",
		strings.NewReader(`{"email":"user@example.com"}`))
	rec := httptest.NewRecorder()
	h.RequestOTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotEmail != "user@example.com" {
		t.Errorf("サービスに渡されたメールアドレス = %q, want %q", gotEmail, "user@example.com")
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗した: %v", err)
	}
	if resp["expires_at"] != "2025-04-01T12:10:00Z" {
		t.Errorf("expires_at = %q, want %q", resp["expires_at"], "2025-04-01T12:10:00Z")
	}
	if resp["address"] != "user@example.com" {
		t.Errorf("address = %q, want %q", resp["address"], "user@example.com")
	}
}

// レスポンスのaddressは正規化済みのアドレスを返すことを検証
func TestRequestOTP_EchoesNormalizedAddress(t *testing.T) {
	service := &mockAuthService{
		requestOTPFunc: func(ctx context.Context, email string) (time.Time, error) {
			return time.Now().Add(10 * time.Minute), nil
		},
	}
	h := testAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/otp/request",
		strings.NewReader(`{"email":"  User@Example.COM "}`))
	rec := httptest.NewRecorder()
	h.RequestOTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗した: %v", err)
	}
	if resp["address"] != "user@example.com" {
		t.Errorf("address = %q, want %q", resp["address"], "user@example.com")
	}
}

func TestRequestOTP_InvalidJSON(t *testing.T) {
	h := testAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/otp/request",
		strings.NewReader(`{invalid`))
	rec := httptest.NewRecorder()
	h.RequestOTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if resp := decodeErrorResponse(t, rec); resp.Code != model.ErrCodeInvalidRequest {
		t.Errorf("エラーコード = %q, want %q", resp.Code, model.ErrCodeInvalidRequest)
	}
}

func TestRequestOTP_EmptyEmail(t *testing.T) {
	h := testAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/otp/request",
		strings.NewReader(`{"email":""}`))
	rec := httptest.NewRecorder()
	h.RequestOTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRequestOTP_NotEligible(t *testing.T) {
	service := &mockAuthService{
		requestOTPFunc: func(ctx context.Context, email string) (time.Time, error) {
			return time.Time{}, model.ErrNotEligible
		},
	}
	h := testAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/otp/request",
		strings.NewReader(`{"email":"stranger@example.com"}`))
	rec := httptest.NewRecorder()
	h.RequestOTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if resp := decodeErrorResponse(t, rec); resp.Code != model.ErrCodeNotEligible {
		t.Errorf("エラーコード = %q, want %q", resp.Code, model.ErrCodeNotEligible)
	}
}

func TestRequestOTP_DeliveryFailure(t *testing.T) {
	service := &mockAuthService{
		requestOTPFunc: func(ctx context.Context, email string) (time.Time, error) {
			return time.Time{}, model.ErrDeliveryFailure
		},
	}
	h := testAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/otp/request",
		strings.NewReader(`{"email":"user@example.com"}`))
	rec := httptest.NewRecorder()
	h.RequestOTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	if resp := decodeErrorResponse(t, rec); resp.Code != model.ErrCodeDeliveryFailure {
		t.Errorf("エラーコード = %q, want %q", resp.Code, model.ErrCodeDeliveryFailure)
	}
}

func TestVerifyOTP_Success_SetsTokenCookie(t *testing.T) {
	user := &model.User{
		ID:           "user-1",
		Email:        "user@example.com",
		DisplayName:  "user",
		Role:         model.RoleUser,
		SafeModeOnly: true,
	}
	service := &mockAuthService{
		verifyOTPFunc: func(ctx context.Context, email, code string) (string, *model.User, error) {
			return "signed-token", user, nil
		},
	}
	h := testAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/otp/verify",
		strings.NewReader(`{"email":"user@example.com","code":"123456"}`))
	rec := httptest.NewRecorder()
	h.VerifyOTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusOK)
	}

	var tokenCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.TokenCookieName {
			tokenCookie = c
		}
	}
	if tokenCookie == nil {
		t.Fatal("トークンCookieが設定されていない")
	}
	if tokenCookie.Value != "signed-token" {
		t.Errorf("Cookie値 = %q, want %q", tokenCookie.Value, "signed-token")
	}
	if !tokenCookie.HttpOnly {
		t.Error("トークンCookieはHttpOnlyであるべき")
	}

	var resp userResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗した: %v", err)
	}
	if resp.ID != "user-1" || resp.Role != "user" || !resp.SafeMode {
		t.Errorf("ユーザーレスポンスが期待と異なる: %+v", resp)
	}
}

func TestVerifyOTP_InvalidCode(t *testing.T) {
	service := &mockAuthService{
		verifyOTPFunc: func(ctx context.Context, email, code string) (string, *model.User, error) {
			return "", nil, model.ErrInvalidCredential
		},
	}
	h := testAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/otp/verify",
		strings.NewReader(`{"email":"user@example.com","code":"000000"}`))
	rec := httptest.NewRecorder()
	h.VerifyOTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if resp := decodeErrorResponse(t, rec); resp.Code != model.ErrCodeInvalidCredential {
		t.Errorf("エラーコード = %q, want %q", resp.Code, model.ErrCodeInvalidCredential)
	}

	// 失敗時にCookieを設定してはならない
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.TokenCookieName {
			t.Error("検証失敗時にトークンCookieが設定されている")
		}
	}
}

func TestVerifyOTP_EmptyFields(t *testing.T) {
	h := testAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/otp/verify",
		strings.NewReader(`{"email":"user@example.com","code":""}`))
	rec := httptest.NewRecorder()
	h.VerifyOTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestLogout_WithToken_RevokesAndClearsCookie(t *testing.T) {
	var gotToken string
	service := &mockAuthService{
		logoutFunc: func(ctx context.Context, token string) error {
			gotToken = token
			return nil
		},
	}
	h := testAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.TokenCookieName, Value: "signed-token"})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if gotToken != "signed-token" {
		t.Errorf("失効対象トークン = %q, want %q", gotToken, "signed-token")
	}

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.TokenCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("トークンCookieがクリアされていない")
	}
}

// CookieなしAuthorization: BearerのみのクライアントでもセッションがDB側で
// 失効することを検証（ミドルウェアと同じ抽出規則）
func TestLogout_WithBearerToken_RevokesSession(t *testing.T) {
	var gotToken string
	service := &mockAuthService{
		logoutFunc: func(ctx context.Context, token string) error {
			gotToken = token
			return nil
		},
	}
	h := testAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer bearer-token")
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if gotToken != "bearer-token" {
		t.Errorf("失効対象トークン = %q, want %q", gotToken, "bearer-token")
	}
}

func TestLogout_WithoutToken_Succeeds(t *testing.T) {
	service := &mockAuthService{
		logoutFunc: func(ctx context.Context, token string) error {
			t.Error("トークンなしのログアウトでサービスが呼ばれた")
			return nil
		},
	}
	h := testAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestLogout_ServiceError(t *testing.T) {
	service := &mockAuthService{
		logoutFunc: func(ctx context.Context, token string) error {
			return errors.New("db down")
		},
	}
	h := testAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.TokenCookieName, Value: "signed-token"})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestLogoutAll_WithToken_RevokesAllAndClearsCookie(t *testing.T) {
	var gotToken string
	service := &mockAuthService{
		logoutAllFunc: func(ctx context.Context, token string) error {
			gotToken = token
			return nil
		},
	}
	h := testAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout/all", nil)
	req.AddCookie(&http.Cookie{Name: middleware.TokenCookieName, Value: "signed-token"})
	rec := httptest.NewRecorder()
	h.LogoutAll(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if gotToken != "signed-token" {
		t.Errorf("失効対象トークン = %q, want %q", gotToken, "signed-token")
	}

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.TokenCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("トークンCookieがクリアされていない")
	}
}

func TestLogoutAll_WithoutToken_Unauthorized(t *testing.T) {
	service := &mockAuthService{
		logoutAllFunc: func(ctx context.Context, token string) error {
			t.Error("トークンなしでサービスが呼ばれた")
			return nil
		},
	}
	h := testAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout/all", nil)
	rec := httptest.NewRecorder()
	h.LogoutAll(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestLogoutAll_InvalidCredential(t *testing.T) {
	service := &mockAuthService{
		logoutAllFunc: func(ctx context.Context, token string) error {
			return model.ErrInvalidCredential
		},
	}
	h := testAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout/all", nil)
	req.Header.Set("Authorization", "Bearer forged-token")
	rec := httptest.NewRecorder()
	h.LogoutAll(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestMe_Authenticated(t *testing.T) {
	h := testAuthHandler(&mockAuthService{})

	ac := &auth.AccessContext{
		User: &model.User{
			ID:          "admin-1",
			Email:       "admin@example.com",
			DisplayName: "admin",
			Role:        model.RoleAdmin,
		},
		IsAuthenticated: true,
		IsAdmin:         true,
	}
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = req.WithContext(middleware.ContextWithAccess(req.Context(), ac))
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp userResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗した: %v", err)
	}
	if resp.ID != "admin-1" || resp.Role != "admin" || resp.SafeMode {
		t.Errorf("ユーザーレスポンスが期待と異なる: %+v", resp)
	}
}

func TestMe_Anonymous(t *testing.T) {
	h := testAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ステータスコード = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if resp := decodeErrorResponse(t, rec); resp.Code != model.ErrCodeUnauthenticated {
		t.Errorf("エラーコード = %q, want %q", resp.Code, model.ErrCodeUnauthenticated)
	}
}
