package auth

import (
	"context"
	"log/slog"

	"github.com/hitoshi/mediagate/internal/model"
)

// AccessContext はリクエストごとの呼び出し元の認証状態を表す。
// 未認証の場合はセーフモードtrueのフェイルクローズドな既定値となる。
type AccessContext struct {
	User            *model.User
	IsAuthenticated bool
	IsAdmin         bool
	IsSafeMode      bool
}

// Authenticate は提示されたトークンからアクセスコンテキストを構築する。
// トークンが無い・検証に失敗した・ユーザーが見つからない、のいずれの場合も
// エラーは返さず匿名コンテキストに縮退する。認可の判断は呼び出し側が
// コンテキストのフラグに基づいて行う。
func (s *Service) Authenticate(ctx context.Context, token string) *AccessContext {
	anonymous := &AccessContext{IsSafeMode: true}

	if token == "" {
		return anonymous
	}

	claims, err := s.sessions.VerifySession(ctx, token)
	if err != nil {
		// 失効・改竄・ストレージ障害のいずれも匿名に縮退する
		slog.Debug("セッション検証に失敗したため匿名として扱います",
			slog.String("error", err.Error()),
		)
		return anonymous
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		slog.Error("アクセスコンテキスト構築中のユーザー取得に失敗しました",
			slog.String("error", err.Error()),
			slog.String("user_id", claims.UserID),
		)
		return anonymous
	}
	if user == nil {
		// セッションは有効だがユーザーが帯域外で削除されている
		slog.Warn("セッションに対応するユーザーが存在しません",
			slog.String("user_id", claims.UserID),
		)
		return anonymous
	}

	return &AccessContext{
		User:            user,
		IsAuthenticated: true,
		IsAdmin:         user.IsAdmin(),
		IsSafeMode:      user.IsSafeMode(),
	}
}
