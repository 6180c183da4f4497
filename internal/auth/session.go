package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hitoshi/mediagate/internal/model"
	"github.com/hitoshi/mediagate/internal/repository"
)

// Claims はセッショントークンに埋め込むクレーム。
// 標準クレームに加えてユーザーID・メールアドレス・ロール・セッションIDを持つ。
type Claims struct {
	jwt.RegisteredClaims
	UserID    string     `json:"uid"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	SessionID string     `json:"sid"`
}

// SessionManagerConfig はセッションマネージャの設定。
type SessionManagerConfig struct {
	Secret   []byte        // HMAC署名シークレット。起動後は読み取り専用。
	TokenTTL time.Duration // トークンとセッションレコードの有効期間
}

// SessionManager はセッショントークンの発行・検証・失効・掃除を行う。
//
// トークンの有効性は3条件の全てで決まる:
//  1. 署名とexpクレームが暗号的に検証できること
//  2. 埋め込まれたセッションIDのレコードが存在し、保存された
//     トークン文字列が提示されたトークンと完全一致すること
//  3. レコードの有効期限が切れていないこと
//
// 署名だけでは失効できず、レコードだけでは改竄を検出できない。
// レコードの削除がトークンの即時失効（サーバー側ログアウト）となる。
type SessionManager struct {
	repo   repository.SessionRepository
	config SessionManagerConfig
	now    func() time.Time
}

// NewSessionManager はSessionManagerを生成する。
// TokenTTLが0以下の場合は7日間を使用する。
func NewSessionManager(repo repository.SessionRepository, config SessionManagerConfig) *SessionManager {
	if config.TokenTTL <= 0 {
		config.TokenTTL = 7 * 24 * time.Hour
	}
	return &SessionManager{
		repo:   repo,
		config: config,
		now:    time.Now,
	}
}

// CreateSession は新しいセッションを発行し、署名済みトークンを返す。
// 推測不可能なセッションIDを生成してクレームに埋め込み、
// 署名済みトークン文字列そのものをレコードとして永続化する。
func (m *SessionManager) CreateSession(ctx context.Context, userID, email string, role model.Role) (string, error) {
	sessionID := uuid.New().String()
	now := m.now()
	expiresAt := now.Add(m.config.TokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID:    userID,
		Email:     email,
		Role:      role,
		SessionID: sessionID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := m.repo.Create(ctx, session); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	slog.Info("セッションを作成しました",
		slog.String("user_id", userID),
		slog.String("email", email),
	)

	return token, nil
}

// VerifySession は提示されたトークンを検証し、有効な場合はクレームを返す。
// 署名不正・形式不正・expクレーム切れの場合はストレージに触れずに
// model.ErrInvalidCredentialを返す。署名検証を通過した場合のみ
// セッションレコードを照合し、レコード不在（ログアウト後など）・
// トークン文字列不一致・レコード期限切れも同じエラーとして返す。
func (m *SessionManager) VerifySession(ctx context.Context, token string) (*Claims, error) {
	claims, err := m.parseToken(token)
	if err != nil {
		return nil, model.ErrInvalidCredential
	}

	session, err := m.repo.FindValid(ctx, claims.SessionID, token)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if session == nil {
		return nil, model.ErrInvalidCredential
	}

	return claims, nil
}

// DeleteSession はトークンに対応するセッションレコードを削除する。
// トークンは署名検証を通過しなければならず、偽造トークンで他者の
// セッションを削除することはできない。検証失敗時はfalseを返す。
// レコードが既に存在しない場合も削除成功として扱う（冪等）。
func (m *SessionManager) DeleteSession(ctx context.Context, token string) (bool, error) {
	claims, err := m.parseToken(token)
	if err != nil {
		return false, nil
	}

	if err := m.repo.DeleteByID(ctx, claims.SessionID); err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("セッションを削除しました",
		slog.String("user_id", claims.UserID),
		slog.String("email", claims.Email),
	)

	return true, nil
}

// DeleteAllForUser は提示トークンの所有者が持つ全セッションレコードを削除する
// （全端末ログアウト）。他人のセッションを巻き込まないよう、トークンは
// 通常の3条件検証を通過しなければならず、検証失敗時は
// model.ErrInvalidCredentialを返す。
func (m *SessionManager) DeleteAllForUser(ctx context.Context, token string) error {
	claims, err := m.VerifySession(ctx, token)
	if err != nil {
		return err
	}

	if err := m.repo.DeleteByUserID(ctx, claims.UserID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}

	slog.Info("ユーザーの全セッションを削除しました",
		slog.String("user_id", claims.UserID),
		slog.String("email", claims.Email),
	)

	return nil
}

// CleanupExpired は有効期限を過ぎたセッションを削除し、削除件数を返す。
func (m *SessionManager) CleanupExpired(ctx context.Context) (int64, error) {
	deleted, err := m.repo.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}
	return deleted, nil
}

// parseToken はトークンの署名・形式・expクレームを検証してクレームを返す。
// HMAC以外の署名メソッドは拒否する。
func (m *SessionManager) parseToken(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.config.Secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.SessionID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
