// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/mediagate/internal/auth"
	"github.com/hitoshi/mediagate/internal/model"
)

// TokenCookieName はセッショントークンを保持するHTTP Only Cookieの名前。
const TokenCookieName = "token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// accessContextKey はリクエストコンテキストにアクセスコンテキストを格納するためのキー。
var accessContextKey = contextKey("access_context")

// Authenticator はトークンからアクセスコンテキストを構築するインターフェース。
// auth.Serviceを抽象化してテスタビリティを向上させる。
type Authenticator interface {
	Authenticate(ctx context.Context, token string) *auth.AccessContext
}

// NewAccessContextMiddleware は全リクエストにアクセスコンテキストを注入する
// ミドルウェアを返す。トークンはCookieまたはAuthorizationヘッダーから読み取る。
// トークンの欠如・無効はエラーにせず匿名コンテキストとして通過させる。
// 認可の判定は各エンドポイント側で行う。
func NewAccessContextMiddleware(authenticator Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			ac := authenticator.Authenticate(r.Context(), token)

			ctx := ContextWithAccess(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewRequireAuthMiddleware はログイン済みであることを要求するミドルウェアを返す。
// AccessContextMiddlewareの後に配置する。
func NewRequireAuthMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac := AccessFromContext(r.Context())
			if !ac.IsAuthenticated {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewRequireAdminMiddleware は管理者権限を要求するミドルウェアを返す。
// AccessContextMiddlewareの後に配置する。
func NewRequireAdminMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac := AccessFromContext(r.Context())
			if !ac.IsAuthenticated {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}
			if !ac.IsAdmin {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccessFromContext はリクエストコンテキストからアクセスコンテキストを取得する。
// ミドルウェアを通過していない場合は匿名コンテキストを返す（フェイルクローズド）。
func AccessFromContext(ctx context.Context) *auth.AccessContext {
	ac, ok := ctx.Value(accessContextKey).(*auth.AccessContext)
	if !ok || ac == nil {
		return &auth.AccessContext{IsSafeMode: true}
	}
	return ac
}

// ContextWithAccess はコンテキストにアクセスコンテキストを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAccess(ctx context.Context, ac *auth.AccessContext) context.Context {
	return context.WithValue(ctx, accessContextKey, ac)
}

// ExtractToken はリクエストからセッショントークンを取り出す。
// Cookieを優先し、なければAuthorization: Bearerヘッダーを参照する。
// トークンを受け付ける全エンドポイントはこの同一の抽出規則を使う。
func ExtractToken(r *http.Request) string {
	if cookie, err := r.Cookie(TokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}

	return ""
}
