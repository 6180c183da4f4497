package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/mediagate/internal/model"
	"github.com/hitoshi/mediagate/internal/repository"
)

// OTPManagerConfig はOTPマネージャの設定。
type OTPManagerConfig struct {
	TTL        time.Duration // コードの有効期間
	CodeLength int           // コードの桁数
}

// OTPManager はワンタイムコードの発行・検証・掃除を行う。
// コードレコードを書き込むのはこのコンポーネントのみ。
type OTPManager struct {
	repo      repository.OTPRepository
	allowlist *Allowlist
	config    OTPManagerConfig
	now       func() time.Time
}

// NewOTPManager はOTPManagerを生成する。
// TTLが0以下の場合は10分、CodeLengthが0以下の場合は6桁を使用する。
func NewOTPManager(repo repository.OTPRepository, allowlist *Allowlist, config OTPManagerConfig) *OTPManager {
	if config.TTL <= 0 {
		config.TTL = 10 * time.Minute
	}
	if config.CodeLength <= 0 {
		config.CodeLength = 6
	}
	return &OTPManager{
		repo:      repo,
		allowlist: allowlist,
		config:    config,
		now:       time.Now,
	}
}

// RequestCode は指定アドレス宛の新しいワンタイムコードを発行する。
// 許可リスト外のアドレスにはmodel.ErrNotEligibleを返し、レコードは作成しない。
// 発行時に同一アドレスの既存コードを全て削除するため、有効なコードは
// 常に最新の1件のみとなる（last-writer-wins）。
// 返却されたコードは帯域外配送のためのものであり、ログには出力しない。
func (m *OTPManager) RequestCode(ctx context.Context, email string) (*model.OTP, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	if !m.allowlist.IsAllowed(email) {
		slog.Warn("許可リスト外のアドレスからOTPが要求されました",
			slog.String("email", email),
		)
		return nil, model.ErrNotEligible
	}

	// 既存コードの無効化
	if err := m.repo.DeleteByEmail(ctx, email); err != nil {
		return nil, fmt.Errorf("failed to invalidate previous codes: %w", err)
	}

	code, err := generateCode(m.config.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}

	now := m.now()
	otp := &model.OTP{
		ID:        uuid.New().String(),
		Email:     email,
		Code:      code,
		ExpiresAt: now.Add(m.config.TTL),
		Consumed:  false,
		CreatedAt: now,
	}

	if err := m.repo.Create(ctx, otp); err != nil {
		return nil, fmt.Errorf("failed to save otp: %w", err)
	}

	slog.Info("OTPを発行しました",
		slog.String("email", email),
		slog.Time("expires_at", otp.ExpiresAt),
	)

	return otp, nil
}

// VerifyCode は指定アドレスとコードの組を検証する。
// 一致するレコードが存在する場合のみアトミックに消費済みにしてtrueを返す。
// コード誤り・期限切れ・消費済みのいずれもfalseを返し、原因は区別しない。
// 消費は条件付きUPDATE 1回で行うため、同一コードへの並行検証で
// 成功するのは最大1つ。
func (m *OTPManager) VerifyCode(ctx context.Context, email, code string) (bool, error) {
	if email == "" || code == "" {
		return false, nil
	}

	consumed, err := m.repo.Consume(ctx, email, code)
	if err != nil {
		return false, fmt.Errorf("failed to verify otp: %w", err)
	}

	if !consumed {
		slog.Warn("OTP検証に失敗しました", slog.String("email", email))
		return false, nil
	}

	slog.Info("OTP検証に成功しました", slog.String("email", email))
	return true, nil
}

// CleanupExpired は有効期限を過ぎたコードを削除し、削除件数を返す。
// 冪等であり、発行・検証と並行して安全に実行できる。
func (m *OTPManager) CleanupExpired(ctx context.Context) (int64, error) {
	deleted, err := m.repo.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired otps: %w", err)
	}
	return deleted, nil
}

// generateCode は一様な乱数源から固定長の数字列を生成する。
func generateCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
