package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/mediagate/internal/model"
	"github.com/hitoshi/mediagate/internal/repository"
)

// Notifier はワンタイムコードの帯域外配送インターフェース。
// SMTP等の具体的な配送手段はこのコアの外で実装される。
type Notifier interface {
	// Deliver は指定アドレスにコードを配送する。
	Deliver(ctx context.Context, email, code string, expiresAt time.Time) error
}

// Recorder は認証イベントのメトリクス記録インターフェース。
// nilの場合は記録しない。
type Recorder interface {
	RecordOTPIssued()
	RecordOTPRejected()
	RecordOTPVerifyFailure()
	RecordSessionCreated()
	RecordSessionRevoked()
}

// Service は認証に関するビジネスロジックを提供する。
// リクエスト層に公開される操作（RequestOTP / VerifyOTP / Logout /
// LogoutAll / Authenticate）の入口であり、OTPマネージャとセッション
// マネージャを束ねる。
type Service struct {
	otp       *OTPManager
	sessions  *SessionManager
	userRepo  repository.UserRepository
	allowlist *Allowlist
	notifier  Notifier
	metrics   Recorder
	now       func() time.Time
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(
	otp *OTPManager,
	sessions *SessionManager,
	userRepo repository.UserRepository,
	allowlist *Allowlist,
	notifier Notifier,
	metrics Recorder,
) *Service {
	return &Service{
		otp:       otp,
		sessions:  sessions,
		userRepo:  userRepo,
		allowlist: allowlist,
		notifier:  notifier,
		metrics:   metrics,
		now:       time.Now,
	}
}

// RequestOTP はワンタイムコードを発行して配送し、有効期限を返す。
// 許可リスト外のアドレスにはmodel.ErrNotEligibleを返す。
// 配送失敗はmodel.ErrDeliveryFailureとして操作全体の失敗となる。
// コードレコード自体は残るがユーザーには届かないため、そのまま
// 期限切れで消える（再リクエストで上書きされる）。
func (s *Service) RequestOTP(ctx context.Context, email string) (time.Time, error) {
	normalized := model.NormalizeEmail(email)

	otp, err := s.otp.RequestCode(ctx, normalized)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordOTPRejected()
		}
		return time.Time{}, err
	}

	if err := s.notifier.Deliver(ctx, normalized, otp.Code, otp.ExpiresAt); err != nil {
		slog.Error("OTPの配送に失敗しました",
			slog.String("email", normalized),
			slog.String("error", err.Error()),
		)
		return time.Time{}, fmt.Errorf("%w: %v", model.ErrDeliveryFailure, err)
	}

	if s.metrics != nil {
		s.metrics.RecordOTPIssued()
	}

	return otp.ExpiresAt, nil
}

// VerifyOTP はコードを検証し、成功時はセッショントークンとユーザーを返す。
// コードの誤り・期限切れ・再利用はいずれもmodel.ErrInvalidCredentialとなる。
// ユーザーが未登録の場合は許可リストを再確認した上で遅延作成する。
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (string, *model.User, error) {
	normalized := model.NormalizeEmail(email)

	ok, err := s.otp.VerifyCode(ctx, normalized, code)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		if s.metrics != nil {
			s.metrics.RecordOTPVerifyFailure()
		}
		return "", nil, model.ErrInvalidCredential
	}

	user, err := s.resolveUser(ctx, normalized)
	if err != nil {
		return "", nil, err
	}

	token, err := s.sessions.CreateSession(ctx, user.ID, user.Email, user.Role)
	if err != nil {
		return "", nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordSessionCreated()
	}

	slog.Info("ユーザーがログインしました",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
		slog.String("role", string(user.Role)),
	)

	return token, user, nil
}

// Logout はトークンに対応するセッションを失効させる。
// 無効なトークンや既に失効済みのセッションに対しても成功する（冪等）。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	deleted, err := s.sessions.DeleteSession(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}

	if deleted && s.metrics != nil {
		s.metrics.RecordSessionRevoked()
	}

	return nil
}

// LogoutAll はトークンの所有者が持つ全セッションを失効させる（全端末ログアウト）。
// Logoutと異なり、無効なトークンにはmodel.ErrInvalidCredentialを返す。
func (s *Service) LogoutAll(ctx context.Context, token string) error {
	if token == "" {
		return model.ErrInvalidCredential
	}

	if err := s.sessions.DeleteAllForUser(ctx, token); err != nil {
		if errors.Is(err, model.ErrInvalidCredential) {
			return err
		}
		return fmt.Errorf("failed to logout all sessions: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSessionRevoked()
	}

	return nil
}

// resolveUser はメールアドレスからユーザーを取得し、存在しなければ作成する。
// OTP発行から引き換えまでの間に許可を取り消された可能性があるため、
// ここでも許可リストを再確認する（多層防御）。
func (s *Service) resolveUser(ctx context.Context, email string) (*model.User, error) {
	if !s.allowlist.IsAllowed(email) {
		return nil, model.ErrNotEligible
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user != nil {
		return user, nil
	}

	role := s.allowlist.RoleFor(email)
	user = &model.User{
		ID:          uuid.New().String(),
		Email:       email,
		DisplayName: model.LocalPart(email),
		Role:        role,
		// 一般ユーザーは常にセーフモード、管理者は切り替え可能なためfalseから開始
		SafeModeOnly: role == model.RoleUser,
		CreatedAt:    s.now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("新規ユーザーを作成しました",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
		slog.String("role", string(user.Role)),
	)

	return user, nil
}
