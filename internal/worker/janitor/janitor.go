// Package janitor は期限切れ状態の自動削除ジョブを提供する。
// 有効期限を過ぎたワンタイムコードとセッションレコードを定期的に削除する。
// セッションレコードの削除はトークン失効と同義であり、期限切れトークンは
// 署名検証前にレコード不在で拒否されるようになる。
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/mediagate/internal/repository"
)

// DefaultInterval は掃除ジョブのデフォルト実行間隔。
const DefaultInterval = 1 * time.Hour

// SweepRecorder は掃除結果のメトリクス記録インターフェース。
type SweepRecorder interface {
	RecordJanitorSweep(otpsDeleted, sessionsDeleted int64)
}

// Janitor は期限切れのワンタイムコードとセッションを削除する定期ジョブ。
// 冪等な削除処理であり、発行・検証処理と並行して安全に実行できる。
type Janitor struct {
	otpRepo     repository.OTPRepository
	sessionRepo repository.SessionRepository
	metrics     SweepRecorder
	logger      *slog.Logger
}

// NewJanitor はJanitorの新しいインスタンスを生成する。
// metricsはnilでもよく、その場合は記録をスキップする。
func NewJanitor(
	otpRepo repository.OTPRepository,
	sessionRepo repository.SessionRepository,
	metrics SweepRecorder,
	logger *slog.Logger,
) *Janitor {
	return &Janitor{
		otpRepo:     otpRepo,
		sessionRepo: sessionRepo,
		metrics:     metrics,
		logger:      logger,
	}
}

// Start は指定間隔のティッカーで掃除ジョブを起動する。
// intervalが0以下の場合はDefaultIntervalを使用する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Janitor) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("掃除ジョブを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("掃除サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("掃除ジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				j.logger.Error("掃除サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は期限切れのワンタイムコードとセッションを1回削除する。
// 片方のストアで失敗してももう片方の削除は続行し、エラーをまとめて返す。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *Janitor) RunOnce(ctx context.Context) error {
	start := time.Now()

	var errs []error

	otpsDeleted, err := j.otpRepo.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("期限切れコードの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		errs = append(errs, fmt.Errorf("期限切れコードの削除に失敗: %w", err))
	}

	sessionsDeleted, err := j.sessionRepo.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		errs = append(errs, fmt.Errorf("期限切れセッションの削除に失敗: %w", err))
	}

	if j.metrics != nil {
		j.metrics.RecordJanitorSweep(otpsDeleted, sessionsDeleted)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	duration := time.Since(start)
	j.logger.Info("掃除サイクルが完了しました",
		slog.Int64("otps_deleted", otpsDeleted),
		slog.Int64("sessions_deleted", sessionsDeleted),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
