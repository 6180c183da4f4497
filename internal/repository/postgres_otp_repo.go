package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/mediagate/internal/model"
)

// PostgresOTPRepo はPostgreSQLを使用したワンタイムコードリポジトリ。
type PostgresOTPRepo struct {
	db *sql.DB
}

// NewPostgresOTPRepo はPostgresOTPRepoを生成する。
func NewPostgresOTPRepo(db *sql.DB) *PostgresOTPRepo {
	return &PostgresOTPRepo{db: db}
}

// Create はワンタイムコードを作成する。
func (r *PostgresOTPRepo) Create(ctx context.Context, otp *model.OTP) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO otps (id, email, code, expires_at, consumed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		otp.ID, otp.Email, otp.Code, otp.ExpiresAt, otp.Consumed, otp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert otp: %w", err)
	}
	return nil
}

// DeleteByEmail は指定メールアドレスの全コードを削除する。
func (r *PostgresOTPRepo) DeleteByEmail(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM otps WHERE email = $1`,
		email,
	)
	if err != nil {
		return fmt.Errorf("failed to delete otps by email: %w", err)
	}
	return nil
}

// Consume は全条件に一致するコードを1回の条件付きUPDATEで消費済みにする。
// consumed = false の条件がシリアライゼーションポイントとなり、
// 同一コードへの並行呼び出しで成功するのは最大1つ。
func (r *PostgresOTPRepo) Consume(ctx context.Context, email, code string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE otps SET consumed = true
		 WHERE email = $1 AND code = $2 AND consumed = false AND expires_at >= now()`,
		email, code,
	)
	if err != nil {
		return false, fmt.Errorf("failed to consume otp: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// DeleteExpired は有効期限を過ぎた全コードを削除し、削除件数を返す。
func (r *PostgresOTPRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM otps WHERE expires_at < now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired otps: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// compile-time interface check
var _ OTPRepository = (*PostgresOTPRepo)(nil)
