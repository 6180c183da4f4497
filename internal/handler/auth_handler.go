// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/mediagate/internal/middleware"
	"github.com/hitoshi/mediagate/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// RequestOTP はワンタイムコードを発行・配送し、有効期限を返す。
	RequestOTP(ctx context.Context, email string) (time.Time, error)
	// VerifyOTP はコードを検証し、成功時はセッショントークンとユーザーを返す。
	VerifyOTP(ctx context.Context, email, code string) (string, *model.User, error)
	// Logout はトークンに対応するセッションを失効させる（冪等）。
	Logout(ctx context.Context, token string) error
	// LogoutAll はトークンの所有者の全セッションを失効させる。
	LogoutAll(ctx context.Context, token string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool
	TokenMaxAge  int // トークンCookieの有効期間（秒）
}

// AuthHandler はOTP認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// otpRequestBody はコード発行リクエストのボディ。
type otpRequestBody struct {
	Email string `json:"email"`
}

// otpVerifyBody はコード検証リクエストのボディ。
type otpVerifyBody struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// userResponse はログインユーザー情報のAPIレスポンス。
type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	SafeMode    bool   `json:"safe_mode"`
}

// RequestOTP はワンタイムコードの発行を処理する。
// POST /api/auth/otp/request
func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if req.Email == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("メールアドレスが空です"))
		return
	}

	expiresAt, err := h.service.RequestOTP(r.Context(), req.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"address":    model.NormalizeEmail(req.Email),
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

// VerifyOTP はワンタイムコードの検証とログインを処理する。
// 成功時はセッショントークンをHTTP OnlyのCookieに設定する。
// POST /api/auth/otp/verify
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if req.Email == "" || req.Code == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("メールアドレスまたは認証コードが空です"))
		return
	}

	token, user, err := h.service.VerifyOTP(r.Context(), req.Email, req.Code)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.TokenMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserResponse(user))
}

// Logout はセッションを失効させ、トークンCookieをクリアする。
// トークンはCookieとAuthorization: Bearerの両方から受け付ける
// （アクセスコンテキストミドルウェアと同じ抽出規則）。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.ExtractToken(r); token != "" {
		if err := h.service.Logout(r.Context(), token); err != nil {
			handleServiceError(w, err)
			return
		}
	}

	h.clearTokenCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll はトークンの所有者が持つ全セッションを失効させる（全端末ログアウト）。
// POST /api/auth/logout/all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	token := middleware.ExtractToken(r)
	if token == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	if err := h.service.LogoutAll(r.Context(), token); err != nil {
		handleServiceError(w, err)
		return
	}

	h.clearTokenCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// clearTokenCookie はトークンCookieを失効させるSet-Cookieを書き込む。
func (h *AuthHandler) clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Me は現在のログインユーザー情報を返す。
// アクセスコンテキストミドルウェアの後段で使用する。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac := middleware.AccessFromContext(r.Context())
	if !ac.IsAuthenticated || ac.User == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserResponse(ac.User))
}

// toUserResponse はmodel.UserからAPIレスポンスに変換する。
func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        string(user.Role),
		SafeMode:    user.IsSafeMode(),
	}
}
